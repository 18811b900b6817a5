package merge

import (
	"os"
	"strings"
)

func normalizeSymbolUpper(symbol string) string {
	return strings.ToUpper(symbol)
}

// removeSourceDir deletes dir and its contents. The merge job has
// already consumed every "*.zip" member into the consolidated day
// archive, so whatever remains (if anything) is safe to discard with
// the source directory.
func removeSourceDir(dir string) error {
	return os.RemoveAll(dir)
}
