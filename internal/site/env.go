package site

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	appURLLine    = regexp.MustCompile(`(?m)^APP_URL=[^\r\n]*`)
	viteAssetLine = regexp.MustCompile(`(?m)^VITE_ASSET_URL=`)
)

// RewriteEnv points APP_URL at the site's alias and makes sure
// VITE_ASSET_URL=/ is present. Applying it twice yields the same text.
func RewriteEnv(content, alias string) string {
	out := appURLLine.ReplaceAllString(content, "APP_URL=http://"+alias)
	if !viteAssetLine.MatchString(out) {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += "VITE_ASSET_URL=/\n"
	}
	return out
}

// RewriteEnvFile applies RewriteEnv to <sitePath>/.env. A missing file is
// left alone. Reports whether the file changed.
func RewriteEnvFile(sitePath, alias string) (bool, error) {
	path := filepath.Join(sitePath, ".env")
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	updated := RewriteEnv(string(data), alias)
	if updated == string(data) {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
