// Package config parses the run-control file that drives an import: one
// OGR-style "PG:" connection line plus line-oriented directives and source
// file patterns. Everything the loader consumes is kept verbatim; only the
// connection parameters and the target schema are interpreted here.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the standard PostgreSQL port.
	DefaultPort = 5432

	// DefaultSchema is used when the run-control file has no schema
	// directive. The import still works, it is just not isolated.
	DefaultSchema = "public"

	// DefaultEPSG is the coordinate reference system handed to the loader
	// when the run-control file does not name one.
	DefaultEPSG = "25832"
)

// ErrNoConnection is returned when the run-control file contains no PG: line.
var ErrNoConnection = errors.New("no PG: connection line in run-control file")

// Profile holds everything extracted from a run-control file. Connection
// parameters are interpreted by the pipeline itself; the remaining directives
// are carried only so they can be inspected; the loader re-reads the
// run-control file on its own.
type Profile struct {
	DBName   string
	User     string
	Password string
	Host     string
	Port     int

	Schema          string
	SchemaDefaulted bool

	EPSG   string
	Jobs   int
	Create bool
	Debug  bool

	// Files are the source file and glob lines, in file order.
	Files []string

	// RelaxTargets collects "table.column" arguments of relax directives.
	RelaxTargets []string

	// Path is the run-control file this profile was loaded from. Empty when
	// parsed from a reader.
	Path string

	// Warnings collects non-fatal findings for the caller to print.
	Warnings []string
}

// Load reads and parses the run-control file at path.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run-control file: %w", err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Path = path
	return p, nil
}

// Parse parses run-control text. A missing PG: line or a PG: line without a
// dbname is fatal; a missing schema directive falls back to DefaultSchema
// with a warning.
func Parse(r io.Reader) (*Profile, error) {
	p := &Profile{Port: DefaultPort, EPSG: DefaultEPSG}
	sawConn := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "PG:") {
			if err := p.parseConnection(strings.TrimPrefix(line, "PG:")); err != nil {
				return nil, err
			}
			sawConn = true
			continue
		}

		directive, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch directive {
		case "schema":
			p.Schema = arg
		case "epsg":
			p.EPSG = arg
		case "jobs":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid jobs value %q", arg)
			}
			p.Jobs = n
		case "create":
			p.Create = true
		case "debug":
			p.Debug = true
		case "relax":
			p.RelaxTargets = append(p.RelaxTargets, arg)
		default:
			p.Files = append(p.Files, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run-control file: %w", err)
	}

	if !sawConn {
		return nil, ErrNoConnection
	}
	if p.DBName == "" {
		return nil, errors.New("PG: connection line has no dbname")
	}
	if p.Schema == "" {
		p.Schema = DefaultSchema
		p.SchemaDefaulted = true
		p.Warnings = append(p.Warnings,
			fmt.Sprintf("no schema directive, importing into %q", DefaultSchema))
	}

	return p, nil
}

// parseConnection extracts keyword=value pairs from an OGR-style connection
// string. Values may be bare, single- or double-quoted.
func (p *Profile) parseConnection(s string) error {
	kv, err := parseKeywordValue(s)
	if err != nil {
		return fmt.Errorf("invalid PG: connection line: %w", err)
	}

	p.DBName = kv["dbname"]
	p.User = kv["user"]
	p.Password = kv["password"]
	p.Host = kv["host"]
	if port, ok := kv["port"]; ok {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q in PG: connection line", port)
		}
		p.Port = n
	}
	return nil
}

func parseKeywordValue(s string) (map[string]string, error) {
	kv := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("expected key=value, got %q", s[i:])
		}
		key := strings.TrimSpace(s[i : i+eq])
		if key == "" {
			return nil, fmt.Errorf("empty key before %q", s[i:])
		}
		i += eq + 1

		var value string
		if i < len(s) && (s[i] == '\'' || s[i] == '"') {
			quote := s[i]
			i++
			end := strings.IndexByte(s[i:], quote)
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote in value of %q", key)
			}
			value = s[i : i+end]
			i += end + 1
		} else {
			end := i
			for end < len(s) && s[end] != ' ' && s[end] != '\t' {
				end++
			}
			value = s[i:end]
			i = end
		}
		kv[key] = value
	}
	return kv, nil
}

// URL builds a pgx connection string for the given database using the
// profile's credentials. An empty host falls back to the local socket.
func (p *Profile) URL(dbname string) string {
	u := &url.URL{
		Scheme: "postgres",
		Path:   "/" + dbname,
	}
	if p.Host != "" {
		u.Host = fmt.Sprintf("%s:%d", p.Host, p.Port)
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	return u.String()
}

// LoaderEnv returns the libpq environment for the loader child process, so
// the credentials stay scoped to that invocation instead of mutating our own
// environment.
func (p *Profile) LoaderEnv() []string {
	env := []string{
		"PGDATABASE=" + p.DBName,
		"PGPORT=" + strconv.Itoa(p.Port),
	}
	if p.Host != "" {
		env = append(env, "PGHOST="+p.Host)
	}
	if p.User != "" {
		env = append(env, "PGUSER="+p.User)
	}
	if p.Password != "" {
		env = append(env, "PGPASSWORD="+p.Password)
	}
	return env
}
