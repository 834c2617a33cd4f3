package search

import (
	"bufio"
	"os"
	"strings"
)

// PrepareCorpus reads the Markdown corpus at path and flattens any table rows
// into standalone one-line facts, so that tabular knowledge becomes separate
// indexable snippets. Lines outside tables are emitted one fact per line.
// When the file carries no table at all, the original bytes are returned
// unchanged.
func PrepareCorpus(path string) ([]byte, error) {
	orig, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(string(orig)))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	sawTable := false
	writeFact := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		b.WriteString(s)
		b.WriteString("\n\n")
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			sawTable = true
			cells := make([]string, 0, 8)
			allSep := true
			for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
				cell := strings.TrimSpace(c)
				if cell != "" {
					cells = append(cells, cell)
				}
				if strings.Trim(cell, ":-") != "" {
					allSep = false
				}
			}
			// separator rows like | --- | :---: | carry no facts
			if allSep || len(cells) == 0 {
				continue
			}
			writeFact(strings.Join(cells, " "))
			continue
		}

		writeFact(line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if !sawTable {
		return orig, nil
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}
