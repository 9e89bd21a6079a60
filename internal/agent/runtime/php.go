package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	goruntime "runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/process"
)

// ErrInterpreterNotFound means the configured PHP build is not installed
// under the bin directory.
var ErrInterpreterNotFound = errors.New("php interpreter not found")

// ErrInvalidVersion rejects version strings that are not plain dotted
// versions.
var ErrInvalidVersion = errors.New("invalid php version")

var versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9A-Za-z]+)*$`)

// Interpreter is one resolved PHP build.
type Interpreter struct {
	Version string
	Exe     string
	// Ini is the php.ini next to the executable, empty when there is none.
	Ini string
}

// ServerArgs builds the built-in web server invocation for addr and docroot.
func (i Interpreter) ServerArgs(addr, docroot string) []string {
	var args []string
	if i.Ini != "" {
		args = append(args, "-c", i.Ini)
	}
	return append(args, "-S", addr, "-t", docroot)
}

// PHP locates bundled interpreters laid out as <bin>/php-<version>/.
type PHP struct {
	logger zerolog.Logger
	binDir string
}

func NewPHP(logger zerolog.Logger, binDir string) *PHP {
	return &PHP{
		logger: logger.With().Str("runtime", "php").Logger(),
		binDir: binDir,
	}
}

// BinDir is the directory scanned for php-<version>/ installs.
func (p *PHP) BinDir() string { return p.binDir }

func (p *PHP) versionDir(version string) string {
	return filepath.Join(p.binDir, "php-"+version)
}

// Resolve finds the executable for version.
func (p *PHP) Resolve(version string) (Interpreter, error) {
	if version == "" {
		return Interpreter{}, fmt.Errorf("%w: no version configured", ErrInterpreterNotFound)
	}
	dir := p.versionDir(version)
	exe := phpExecutable()

	for _, candidate := range []string{filepath.Join(dir, exe), filepath.Join(dir, "bin", exe)} {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		in := Interpreter{Version: version, Exe: candidate}
		if _, err := os.Stat(filepath.Join(dir, "php.ini")); err == nil {
			in.Ini = filepath.Join(dir, "php.ini")
		}
		return in, nil
	}
	return Interpreter{}, fmt.Errorf("%w: %s", ErrInterpreterNotFound, filepath.Join(dir, exe))
}

// Versions lists installed versions, oldest first. A missing bin directory
// has none.
func (p *PHP) Versions() ([]string, error) {
	entries, err := os.ReadDir(p.binDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list php versions: %w", err)
	}

	versions := []string{}
	for _, e := range entries {
		v, ok := strings.CutPrefix(e.Name(), "php-")
		if !ok || v == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(p.binDir, e.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return compareVersions(versions[i], versions[j]) < 0 })
	return versions, nil
}

// Installed reports whether version has a directory under the bin dir.
func (p *PHP) Installed(version string) bool {
	if !versionPattern.MatchString(version) {
		return false
	}
	info, err := os.Stat(p.versionDir(version))
	return err == nil && info.IsDir()
}

// Remove deletes an installed version's directory.
func (p *PHP) Remove(version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	if !p.Installed(version) {
		return fmt.Errorf("%w: %s", ErrInterpreterNotFound, version)
	}
	if err := os.RemoveAll(p.versionDir(version)); err != nil {
		return fmt.Errorf("remove php %s: %w", version, err)
	}
	p.logger.Info().Str("version", version).Msg("removed php version")
	return nil
}

func phpExecutable() string {
	if goruntime.GOOS == "windows" {
		return "php.exe"
	}
	return "php"
}

// compareVersions orders dotted versions numerically, falling back to a
// string comparison for non-numeric parts.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				return xn - yn
			}
		case x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}

// The built-in server writes its request log to stderr.
var phpServerRoutine = regexp.MustCompile(`\s\[\d{3}\]|Accepted|Closing|Development Server`)

// ClassifyServerLine separates request-log noise from real diagnostics.
func ClassifyServerLine(line string) process.Level {
	if phpServerRoutine.MatchString(line) {
		return process.Routine
	}
	return process.Problem
}
