package parsing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedge-wan/hedge/scenario"
	"github.com/hedge-wan/hedge/topology"
)

const yamlTopology = `
name: tri
links:
  - a: "1"
    b: "2"
    states:
      - {capacity: 100, probability: 0.9}
      - {capacity: 0, probability: 0.1}
  - a: "2"
    b: "1"
    states:
      - {capacity: 10, probability: 1}
  - a: "2"
    b: "3"
    states:
      - {capacity: 200, probability: 0.99}
      - {capacity: 100, probability: 0.01}
`

const jsonTopology = `{
  "links": [
    {"a": "1", "b": "2", "states": [{"capacity": 100, "probability": 0.9}, {"capacity": 0, "probability": 0.1}]},
    {"a": "2", "b": "3", "states": [{"capacity": 200, "probability": 0.99}, {"capacity": 100, "probability": 0.01}]}
  ]
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestReadTopology(t *testing.T) {
	testCases := []struct {
		name     string
		file     string
		body     string
		wantName string
	}{
		{name: "yaml", file: "b4.yaml", body: yamlTopology, wantName: "tri"},
		{name: "json", file: "b4.json", body: jsonTopology, wantName: "b4"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, links, err := ReadTopology(writeFile(t, tc.file, tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, name)
			require.Equal(t, 2, links.Len())

			l, ok := links.Lookup(topology.EdgeKey{From: "2", To: "1"})
			require.True(t, ok)
			assert.Equal(t, 100.0, l.Distribution.Max().Capacity)
			assert.Equal(t, 0.1, l.Distribution.Prob(0))
		})
	}
}

func TestReadTopologyErrors(t *testing.T) {
	_, _, err := ReadTopology(writeFile(t, "topo.pkl", "x"))
	assert.ErrorIs(t, err, ErrFormat)

	_, _, err = ReadTopology(writeFile(t, "bad.yaml", `links:
  - a: "1"
    b: "2"
    states:
      - {capacity: 100, probability: 0.5}
`))
	assert.ErrorIs(t, err, scenario.ErrBadDistribution)

	_, _, err = ReadTopology(writeFile(t, "dup.yaml", `links:
  - a: "1"
    b: "2"
    states:
      - {capacity: 100, probability: 0.5}
      - {capacity: 100, probability: 0.5}
`))
	assert.ErrorIs(t, err, scenario.ErrBadDistribution)

	_, _, err = ReadTopology(writeFile(t, "empty.json", `{"links": []}`))
	assert.ErrorIs(t, err, scenario.ErrNoLinks)

	_, _, err = ReadTopology(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func threeNodes() *topology.Network {
	net := topology.NewNetwork("tri")
	for _, id := range []string{"1", "2", "3"} {
		net.AddNode(id)
	}
	return net
}

func TestParseDemands(t *testing.T) {
	net := threeNodes()
	matrix := strings.Join([]string{
		"0 1000 2000 3000 0 500 0 0 0",
		"",
		"7 4000 1000 1000 9 800 0 0 0",
	}, "\n")
	require.NoError(t, ParseDemands(net, strings.NewReader(matrix), 2))

	// six off-diagonal pairs, diagonal ignored
	assert.Equal(t, 6, net.DemandCount())
	amounts := map[topology.DemandKey]float64{
		{Src: "1", Dst: "2"}: 8,
		{Src: "1", Dst: "3"}: 4,
		{Src: "2", Dst: "1"}: 6,
		{Src: "2", Dst: "3"}: 1.6,
		{Src: "3", Dst: "1"}: 0,
		{Src: "3", Dst: "2"}: 0,
	}
	for key, want := range amounts {
		d, ok := net.Demand(key)
		require.True(t, ok, key.String())
		assert.InDelta(t, want, d.Amount, 1e-9, key.String())
	}
	assert.Equal(t, topology.DemandKey{Src: "1", Dst: "2"}, net.Demands()[0].Key)
}

func TestParseDemandsErrors(t *testing.T) {
	err := ParseDemands(threeNodes(), strings.NewReader("1 2 3"), 1)
	assert.ErrorIs(t, err, ErrMatrixShape)

	err = ParseDemands(threeNodes(), strings.NewReader("0 1 2 3 4 5 6 7 x"), 1)
	assert.Error(t, err)

	named := topology.NewNetwork("named")
	named.AddNode("a")
	err = ParseDemands(named, strings.NewReader("0"), 1)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestReadDemands(t *testing.T) {
	net := threeNodes()
	path := writeFile(t, "tm.txt", "0 1000 1000 1000 0 1000 1000 1000 0\n")
	require.NoError(t, ReadDemands(net, path, 1))
	assert.InDelta(t, 6.0, net.TotalDemand(), 1e-9)

	assert.Error(t, ReadDemands(threeNodes(), filepath.Join(t.TempDir(), "none.txt"), 1))
}
