package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zekoder/zecore/modules/record/domain/types"
	recordsvc "github.com/zekoder/zecore/modules/record/services"
)

type manifestField struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

type manifestRelation struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Kind       string `yaml:"kind"`
	ForeignKey string `yaml:"foreign_key"`
}

type manifestRules struct {
	DeleteGate string            `yaml:"delete_gate"`
	Derive     map[string]string `yaml:"derive"`
}

type manifestResource struct {
	Name       string             `yaml:"name"`
	Table      string             `yaml:"table"`
	PrimaryKey string             `yaml:"primary_key"`
	Fields     []manifestField    `yaml:"fields"`
	Unique     [][]string         `yaml:"unique"`
	Relations  []manifestRelation `yaml:"relations"`
	Aggregates []string           `yaml:"aggregates"`
	Rules      manifestRules      `yaml:"rules"`
}

type manifestFile struct {
	Version   int                `yaml:"version"`
	Resources []manifestResource `yaml:"resources"`
}

var fieldKinds = map[string]types.FieldKind{
	"text":     types.KindText,
	"bool":     types.KindBool,
	"int":      types.KindInt,
	"float":    types.KindFloat,
	"date":     types.KindDate,
	"datetime": types.KindDateTime,
	"uuid":     types.KindUUID,
	"json":     types.KindJSON,
}

var relationKinds = map[string]types.RelationKind{
	"belongs_to": types.BelongsTo,
	"has_many":   types.HasMany,
}

// LoadManifest reads the resources manifest and registers every resource it
// declares. The path comes from ZECORE_RESOURCES_PATH, falling back to a
// config/resources.yaml found by walking up from the working directory.
func LoadManifest(r *Registry) error {
	path := os.Getenv("ZECORE_RESOURCES_PATH")
	if path == "" {
		p, err := defaultManifestPath()
		if err != nil {
			return err
		}
		path = p
	}
	return LoadManifestFile(r, path)
}

func LoadManifestFile(r *Registry, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var mf manifestFile
	if err := yaml.Unmarshal(b, &mf); err != nil {
		return err
	}
	if mf.Version != 1 {
		return errors.New("registry: unsupported manifest version")
	}
	if len(mf.Resources) == 0 {
		return errors.New("registry: empty manifest")
	}

	for _, res := range mf.Resources {
		reg, err := registrationFromManifest(res)
		if err != nil {
			return err
		}
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func registrationFromManifest(res manifestResource) (Registration, error) {
	if res.Name == "" {
		return Registration{}, errors.New("registry: resource without a name")
	}

	desc := types.Descriptor{
		Name:         res.Name,
		Table:        res.Table,
		PrimaryKey:   res.PrimaryKey,
		UniqueFields: res.Unique,
	}
	for _, f := range res.Fields {
		kind, ok := fieldKinds[f.Kind]
		if !ok {
			return Registration{}, fmt.Errorf("registry: %s field %q has unknown kind %q", res.Name, f.Name, f.Kind)
		}
		desc.Fields = append(desc.Fields, types.Field{Name: f.Name, Kind: kind})
	}
	for _, rel := range res.Relations {
		kind, ok := relationKinds[rel.Kind]
		if !ok {
			return Registration{}, fmt.Errorf("registry: %s relation %q has unknown kind %q", res.Name, rel.Name, rel.Kind)
		}
		if rel.Target == "" || rel.ForeignKey == "" {
			return Registration{}, fmt.Errorf("registry: %s relation %q is incomplete", res.Name, rel.Name)
		}
		desc.Relations = append(desc.Relations, types.Relation{
			Name:       rel.Name,
			Target:     rel.Target,
			Kind:       kind,
			ForeignKey: rel.ForeignKey,
		})
	}

	return Registration{
		Descriptor:        desc,
		AllowedAggregates: res.Aggregates,
		Rules: recordsvc.RuleHooksConfig{
			DeleteGate: res.Rules.DeleteGate,
			Derive:     res.Rules.Derive,
		},
	}, nil
}

func defaultManifestPath() (string, error) {
	path := "config/resources.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("registry: resources manifest not found")
}
