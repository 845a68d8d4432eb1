package detector

import (
	"bufio"
	"fmt"
	"os"
)

// LoadLabels reads a whitespace-separated label file, one token per
// class id, the format model optimizers emit next to the IR. An empty
// path returns nil labels (ids render as "label #N").
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detector: reading labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		labels = append(labels, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("detector: scanning labels: %w", err)
	}
	return labels, nil
}
