package parsing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hedge-wan/hedge/topology"
)

// demandUnit converts matrix entries to link capacity units.
const demandUnit = 1000.0

// ReadDemands adds the demands of a traffic matrix file to net. See ParseDemands.
func ReadDemands(net *topology.Network, path string, scale float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open demand file: %w", err)
	}
	defer f.Close()
	if err := ParseDemands(net, f, scale); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ParseDemands reads one space separated n*n matrix per line, nodes being
// numbered "1".."n" in row-major order. Each pair's demand is its maximum over
// all lines, divided by 1000 and multiplied by scale. Diagonal entries are
// ignored.
func ParseDemands(net *topology.Network, r io.Reader, scale float64) error {
	n := net.NodeCount()
	for i := 1; i <= n; i++ {
		if _, ok := net.Node(strconv.Itoa(i)); !ok {
			return fmt.Errorf("node %d: %w", i, ErrUnknownNode)
		}
	}

	peak := make([]float64, n*n)
	seen := make([]bool, n*n)
	rows := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		rows++
		if len(fields) != n*n {
			return fmt.Errorf("row %d has %d values, want %d: %w", rows, len(fields), n*n, ErrMatrixShape)
		}
		for idx, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return fmt.Errorf("row %d column %d: %w", rows, idx, err)
			}
			if !seen[idx] || v > peak[idx] {
				peak[idx] = v
				seen[idx] = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	added := 0
	for idx := range peak {
		src, dst := idx/n+1, idx%n+1
		if src == dst || !seen[idx] {
			continue
		}
		net.AddDemand(strconv.Itoa(src), strconv.Itoa(dst), peak[idx]/demandUnit*scale)
		added++
	}
	log.Infof("ParseDemands: rows=%d demands=%d total=%.3f", rows, added, net.TotalDemand())
	return nil
}
