package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvFile names an explicit .env file and disables the directory search.
const EnvFile = "FIELDSYNC_ENV_FILE"

// userDotEnv is the per-user fallback below $HOME.
const userDotEnv = ".fieldsync/.env"

var (
	loadOnce sync.Once
	loaded   Loaded
	loadErr  error
)

// Loaded describes the .env file applied to the process environment.
type Loaded struct {
	Path string
	// Keys lists the variables the file set. Variables already present in
	// the environment are never overwritten and are not listed.
	Keys []string
}

// Ensure applies the FieldSync .env file once per process. Subsequent calls
// return the first result.
//
// Lookup order: $FIELDSYNC_ENV_FILE, then the nearest .env from the working
// directory upwards, then ~/.fieldsync/.env. Under `go test` only the explicit
// file is honoured so developer-local settings never leak into tests.
func Ensure() error {
	loadOnce.Do(func() {
		loaded, loadErr = loadFirst(dotEnvCandidates())
		if loadErr != nil {
			log.Warn().Err(loadErr).Msg("fieldsync: load .env failed")
		}
	})
	return loadErr
}

// LoadedFile reports what Ensure applied. Path is "" when no file was found.
func LoadedFile() Loaded {
	return loaded
}

func dotEnvCandidates() []string {
	if explicit := strings.TrimSpace(os.Getenv(EnvFile)); explicit != "" {
		return []string{explicit}
	}
	if runningUnderGoTest() {
		return nil
	}
	var out []string
	if wd, err := os.Getwd(); err == nil {
		out = append(out, ancestorsDotEnv(wd)...)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		out = append(out, filepath.Join(home, userDotEnv))
	}
	return out
}

func ancestorsDotEnv(dir string) []string {
	var out []string
	for {
		out = append(out, filepath.Join(dir, ".env"))
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// loadFirst applies the first existing candidate. A missing candidate is
// skipped; an unreadable or malformed one stops the search.
func loadFirst(candidates []string) (Loaded, error) {
	for _, path := range candidates {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Loaded{}, errors.Wrapf(err, "stat %s", path)
		}
		if info.IsDir() {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return Loaded{}, errors.Wrapf(err, "parse %s", path)
		}
		res := Loaded{Path: path}
		for key, val := range values {
			if _, set := os.LookupEnv(key); set {
				continue
			}
			if err := os.Setenv(key, val); err != nil {
				return Loaded{}, errors.Wrapf(err, "set %s", key)
			}
			res.Keys = append(res.Keys, key)
		}
		sort.Strings(res.Keys)
		return res, nil
	}
	return Loaded{}, nil
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
