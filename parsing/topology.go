// Package parsing reads topology distribution files and demand matrices.
package parsing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hedge-wan/hedge/scenario"
)

var (
	ErrFormat      = errors.New("unsupported file format")
	ErrUnknownNode = errors.New("unknown node")
	ErrMatrixShape = errors.New("demand row has wrong length")
)

// TopologyFile is the on-disk form of a stochastic topology. Each link is
// listed once; a reverse entry for the same node pair is ignored.
type TopologyFile struct {
	Name  string     `json:"name" yaml:"name"`
	Links []LinkSpec `json:"links" yaml:"links"`
}

type LinkSpec struct {
	A      string           `json:"a" yaml:"a"`
	B      string           `json:"b" yaml:"b"`
	States []scenario.State `json:"states" yaml:"states"`
}

// ReadTopology loads a .json, .yaml or .yml topology file.
func ReadTopology(path string) (string, *scenario.LinkSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var tf TopologyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &tf)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tf)
	default:
		return "", nil, fmt.Errorf("%s: %w", path, ErrFormat)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	links, err := tf.LinkSet()
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	name := tf.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	log.Infof("ReadTopology: file=%s name=%s links=%d", path, name, links.Len())
	return name, links, nil
}

func (tf *TopologyFile) LinkSet() (*scenario.LinkSet, error) {
	links := scenario.NewLinkSet()
	for _, spec := range tf.Links {
		states := make(map[float64]float64, len(spec.States))
		for _, s := range spec.States {
			if _, dup := states[s.Capacity]; dup {
				return nil, fmt.Errorf("link %s-%s repeats capacity %v: %w", spec.A, spec.B, s.Capacity, scenario.ErrBadDistribution)
			}
			states[s.Capacity] = s.Probability
		}
		kept, err := links.Add(spec.A, spec.B, scenario.NewDistribution(states))
		if err != nil {
			return nil, err
		}
		if !kept {
			log.Debugf("LinkSet: ignoring duplicate link %s-%s", spec.A, spec.B)
		}
	}
	if links.Len() == 0 {
		return nil, scenario.ErrNoLinks
	}
	return links, nil
}
