package appmigrate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var declarationFilePattern = regexp.MustCompile(`^(.+)\.ya?ml$`)

type declaration struct {
	ID     string
	Source string
	doc    declarationDoc
}

type declarationDoc struct {
	Steps        []stepDoc        `yaml:"steps"`
	Transactions []transactionDoc `yaml:"transactions"`
}

type stepDoc struct {
	Name         string `yaml:"name"`
	Apply        string `yaml:"apply"`
	Rollback     string `yaml:"rollback"`
	IgnoreErrors string `yaml:"ignore_errors"`
	Atomic       *bool  `yaml:"atomic"`
}

type transactionDoc struct {
	Steps        []string `yaml:"steps"`
	IgnoreErrors string   `yaml:"ignore_errors"`
	Atomic       *bool    `yaml:"atomic"`
}

type parser struct {
	fs fs.FS
}

func newParser(filesystem fs.FS) *parser {
	return &parser{fs: filesystem}
}

func (p *parser) parseDeclarations(dir string) ([]declaration, error) {
	entries, err := fs.ReadDir(p.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var declarations []declaration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := declarationFilePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		decl, err := p.parseDeclarationFile(path.Join(dir, entry.Name()), matches[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", entry.Name(), err)
		}

		declarations = append(declarations, decl)
	}

	return declarations, nil
}

func (p *parser) parseDeclarationFile(filePath, id string) (declaration, error) {
	file, err := p.fs.Open(filePath)
	if err != nil {
		return declaration{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return declaration{}, fmt.Errorf("failed to read file: %w", err)
	}

	var doc declarationDoc
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return declaration{}, fmt.Errorf("%w: %v", ErrInvalidDeclaration, err)
	}

	return declaration{ID: id, Source: string(content), doc: doc}, nil
}

// replay declares the document's steps and transactions on b.
func (d declaration) replay(b *Builder) error {
	handles := make(map[string]*Transaction, len(d.doc.Steps))

	for i, s := range d.doc.Steps {
		opts, err := declarationOptions(s.IgnoreErrors, s.Atomic)
		if err != nil {
			return err
		}

		if strings.TrimSpace(s.Apply) == "" && strings.TrimSpace(s.Rollback) == "" {
			return fmt.Errorf("%w: step %d has neither apply nor rollback", ErrInvalidDeclaration, i)
		}

		h := b.Step(Query(strings.TrimSpace(s.Apply)), Query(strings.TrimSpace(s.Rollback)), opts...)
		if s.Name == "" {
			continue
		}
		if _, dup := handles[s.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidDeclaration, s.Name)
		}
		handles[s.Name] = h
	}

	for i, t := range d.doc.Transactions {
		opts, err := declarationOptions(t.IgnoreErrors, t.Atomic)
		if err != nil {
			return err
		}

		group := make([]*Transaction, 0, len(t.Steps))
		for _, name := range t.Steps {
			h, ok := handles[name]
			if !ok {
				return fmt.Errorf("%w: transaction %d references unknown step %q", ErrInvalidDeclaration, i, name)
			}
			group = append(group, h)
		}

		if _, err := b.Transaction(group, opts...); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	return nil
}

func declarationOptions(ignoreErrors string, atomic *bool) ([]Option, error) {
	policy, err := ParseErrorPolicy(ignoreErrors)
	if err != nil {
		return nil, err
	}

	opts := []Option{IgnoreErrors(policy)}
	if atomic != nil && !*atomic {
		opts = append(opts, NonAtomic())
	}
	return opts, nil
}
