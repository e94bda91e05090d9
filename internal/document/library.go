package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quill/internal/fileutil"
	"quill/internal/services"
)

const fileExt = ".md"

// ErrDuplicate reports a slug present in more than one lifecycle directory.
var ErrDuplicate = errors.New("document present in multiple lifecycle directories")

// Entry identifies one stored document.
type Entry struct {
	Slug  string
	Stage Stage
	Path  string
}

// Library stores documents under a content root, one directory per
// lifecycle stage. The header stage decides which directory holds a file.
type Library struct {
	root string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(root string) *Library {
	return &Library{root: root}
}

// Root returns the content directory.
func (l *Library) Root() string { return l.root }

// Dir returns the directory for stage.
func (l *Library) Dir(stage Stage) string {
	return filepath.Join(l.root, stage.Dir())
}

// Path returns where a document with slug lives when in stage.
func (l *Library) Path(stage Stage, slug string) string {
	return filepath.Join(l.Dir(stage), slug+fileExt)
}

// EnsureDirs creates every lifecycle directory.
func (l *Library) EnsureDirs() error {
	for _, stage := range Stages() {
		if err := os.MkdirAll(l.Dir(stage), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", l.Dir(stage), err)
		}
	}
	return nil
}

// Locate finds the single file for slug.
func (l *Library) Locate(slug string) (Entry, error) {
	if err := checkSlug(slug); err != nil {
		return Entry{}, err
	}
	var found []Entry
	for _, stage := range Stages() {
		path := l.Path(stage, slug)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Entry{}, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			found = append(found, Entry{Slug: slug, Stage: stage, Path: path})
		}
	}
	switch len(found) {
	case 0:
		return Entry{}, services.Wrap(services.ErrNotFound, "", "locate", fmt.Sprintf("document %q", slug), nil)
	case 1:
		return found[0], nil
	default:
		stages := make([]string, 0, len(found))
		for _, entry := range found {
			stages = append(stages, entry.Stage.String())
		}
		return Entry{}, fmt.Errorf("%w: %q in %s", ErrDuplicate, slug, strings.Join(stages, ", "))
	}
}

// Exists reports whether slug is stored anywhere.
func (l *Library) Exists(slug string) bool {
	_, err := l.Locate(slug)
	return err == nil || errors.Is(err, ErrDuplicate)
}

// Load reads the document for slug.
func (l *Library) Load(slug string) (Document, Entry, error) {
	entry, err := l.Locate(slug)
	if err != nil {
		return Document{}, Entry{}, err
	}
	doc, err := LoadFile(entry.Path)
	return doc, entry, err
}

// LoadFile reads and parses a document file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Create writes a new document. It fails when the slug already exists in any
// stage.
func (l *Library) Create(doc Document) (Entry, error) {
	slug := doc.Slug()
	if err := checkSlug(slug); err != nil {
		return Entry{}, err
	}
	if l.Exists(slug) {
		return Entry{}, services.Wrap(services.ErrValidation, "", "create", fmt.Sprintf("document %q already exists", slug), nil)
	}
	if !doc.Header.Has(KeyStage) {
		doc.Header.Set(KeyStage, string(StageDraft))
	}
	path := l.Path(doc.Stage(), slug)
	if err := fileutil.WriteFileAtomic(path, []byte(Serialize(doc)), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Entry{Slug: slug, Stage: doc.Stage(), Path: path}, nil
}

// Save writes doc to the directory of its header stage. A copy of the same
// slug in another stage directory is removed afterwards so the document is
// never duplicated.
func (l *Library) Save(doc Document) (Entry, error) {
	slug := doc.Slug()
	if err := checkSlug(slug); err != nil {
		return Entry{}, err
	}
	previous, locateErr := l.Locate(slug)
	if locateErr != nil && !errors.Is(locateErr, services.ErrNotFound) {
		return Entry{}, locateErr
	}
	stage := doc.Stage()
	path := l.Path(stage, slug)
	if err := fileutil.WriteFileAtomic(path, []byte(Serialize(doc)), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", path, err)
	}
	if locateErr == nil && previous.Path != path {
		if err := os.Remove(previous.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Entry{}, fmt.Errorf("remove stale %s: %w", previous.Path, err)
		}
	}
	return Entry{Slug: slug, Stage: stage, Path: path}, nil
}

// Update merges partial into the stored header. When the merge changes the
// stage, the header is rewritten in place first and the file is then moved
// to its new directory.
func (l *Library) Update(slug string, partial *Header) (Document, Entry, error) {
	entry, err := l.Locate(slug)
	if err != nil {
		return Document{}, Entry{}, err
	}
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return Document{}, Entry{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	updated := UpdateHeader(string(data), partial)
	if err := fileutil.WriteFileAtomic(entry.Path, []byte(updated), 0o644); err != nil {
		return Document{}, Entry{}, fmt.Errorf("write %s: %w", entry.Path, err)
	}
	doc := Parse(updated)
	target := doc.Stage()
	if target == entry.Stage {
		return doc, entry, nil
	}
	dest := l.Path(target, slug)
	if _, err := os.Stat(dest); err == nil {
		return doc, entry, fmt.Errorf("%w: %q already in %s", ErrDuplicate, slug, target)
	}
	if err := fileutil.MoveFile(entry.Path, dest); err != nil {
		return doc, entry, fmt.Errorf("move %s to %s: %w", entry.Path, dest, err)
	}
	return doc, Entry{Slug: slug, Stage: target, Path: dest}, nil
}

// Move sets the stage of slug to `to`, merging any extra header updates in
// the same write.
func (l *Library) Move(slug string, to Stage, updates *Header) (Document, Entry, error) {
	partial := updates.Clone()
	if partial == nil {
		partial = NewHeader()
	}
	partial.Set(KeyStage, string(to))
	return l.Update(slug, partial)
}

// List returns the documents in stage sorted by slug.
func (l *Library) List(stage Stage) ([]Entry, error) {
	dir := l.Dir(stage)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		slug := strings.TrimSuffix(name, fileExt)
		out = append(out, Entry{Slug: slug, Stage: stage, Path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// All lists every stored document, stage by stage.
func (l *Library) All() ([]Entry, error) {
	var out []Entry
	for _, stage := range Stages() {
		entries, err := l.List(stage)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Reconcile re-files documents whose header stage disagrees with their
// directory. A file without a stage field gets the stage of its directory.
// It returns the entries that moved.
func (l *Library) Reconcile() ([]Entry, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var moved []Entry
	var errs []error
	for _, entry := range all {
		doc, err := LoadFile(entry.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		declared, ok := ParseStage(doc.Header.String(KeyStage))
		if !ok {
			doc.Header.Set(KeyStage, string(entry.Stage))
			if err := fileutil.WriteFileAtomic(entry.Path, []byte(Serialize(doc)), 0o644); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if declared == entry.Stage {
			continue
		}
		dest := l.Path(declared, entry.Slug)
		if _, err := os.Stat(dest); err == nil {
			errs = append(errs, fmt.Errorf("%w: %q in %s and %s", ErrDuplicate, entry.Slug, entry.Stage, declared))
			continue
		}
		if err := fileutil.MoveFile(entry.Path, dest); err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, Entry{Slug: entry.Slug, Stage: declared, Path: dest})
	}
	return moved, errors.Join(errs...)
}

func checkSlug(slug string) error {
	if strings.TrimSpace(slug) == "" {
		return services.Wrap(services.ErrValidation, "", "document", "slug is required", nil)
	}
	if strings.ContainsAny(slug, `/\`) || slug == "." || slug == ".." {
		return services.Wrap(services.ErrValidation, "", "document", fmt.Sprintf("invalid slug %q", slug), nil)
	}
	return nil
}
