package guard

import (
	"bufio"
	"os"
	"strings"
)

// SkipFileName is the repo-root file whose entries extend the report
// pass's skip prefixes, one path prefix per line.
const SkipFileName = ".reportsignore"

// LoadSkipPrefixes reads extra skip prefixes from path. Blank lines and
// lines starting with "#" are ignored; a missing file yields nil.
func LoadSkipPrefixes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var prefixes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prefixes = append(prefixes, strings.TrimSuffix(line, "/"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return prefixes, nil
}
