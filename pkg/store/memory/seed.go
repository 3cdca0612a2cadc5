package memory

import (
	"fmt"
	"os"

	"mteval/internal/model"

	"gopkg.in/yaml.v3"
)

// Seed is the fixture format accepted by LoadSeed
type Seed struct {
	Users      []string        `yaml:"users"`
	Namespaces []SeedNamespace `yaml:"namespaces"`
}

type SeedNamespace struct {
	Name     string        `yaml:"name"`
	Datasets []SeedDataset `yaml:"datasets"`
}

type SeedDataset struct {
	SourceLang string        `yaml:"source_lang"`
	TargetLang string        `yaml:"target_lang"`
	Segments   []SeedSegment `yaml:"segments"`
	Runs       []SeedRun     `yaml:"runs"`
}

type SeedSegment struct {
	Src string  `yaml:"src"`
	Ref *string `yaml:"ref"`
}

type SeedRun struct {
	Translations []string `yaml:"translations"`
}

// LoadSeedFile reads a YAML fixture from path into the store
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	return s.LoadSeed(data)
}

// LoadSeed loads namespaces, users, datasets and runs from a YAML fixture
func (s *Store) LoadSeed(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}
	for _, username := range seed.Users {
		s.AddUser(username)
	}
	for _, ns := range seed.Namespaces {
		created := s.AddNamespace(ns.Name)
		for _, ds := range ns.Datasets {
			segments := make([]model.Segment, len(ds.Segments))
			for i, seg := range ds.Segments {
				segments[i] = model.Segment{Src: seg.Src, Ref: seg.Ref}
			}
			datasetID := s.AddDataset(created.ID, ds.SourceLang, ds.TargetLang, segments)
			for _, r := range ds.Runs {
				if _, err := s.AddRun(datasetID, r.Translations); err != nil {
					return fmt.Errorf("namespace %s: %w", ns.Name, err)
				}
			}
		}
	}
	return nil
}
