// Package tree builds the in-memory mapping from walked local paths to the
// remote folders to create and the assets to upload into them.
package tree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/damtools/go-aemupload/upload/naming"
	"github.com/damtools/go-aemupload/upload/walker"
)

// DefaultMaxFiles caps the number of files one invocation will upload when
// the options do not set a limit.
const DefaultMaxFiles = 1000

// ErrTooManyFiles is returned when the walked file count exceeds the cap.
var ErrTooManyFiles = errors.New("maximum upload file count exceeded")

// Directory describes one remote folder to create. The parent link is a
// plain back-reference; children are not tracked, so there is no ownership
// cycle.
type Directory struct {
	LocalPath string
	NodeName  string
	// Title is the original local name, sent as the folder's display title.
	Title string

	parent *Directory
	remote string
}

// Parent returns the directory this one is created beneath; nil for the
// root.
func (d *Directory) Parent() *Directory {
	return d.parent
}

// RemotePath returns the folder's full remote path, computed by walking
// parent links up to the root.
func (d *Directory) RemotePath() string {
	if d.remote != "" {
		return d.remote
	}
	if d.parent == nil {
		d.remote = "/" + d.NodeName
		return d.remote
	}
	d.remote = d.parent.RemotePath() + "/" + d.NodeName
	return d.remote
}

// Asset describes one file to upload.
type Asset struct {
	LocalPath    string
	Size         int64
	NodeName     string
	RemoteFolder string
}

// RemotePath ...
func (a *Asset) RemotePath() string {
	return a.RemoteFolder + "/" + a.NodeName
}

// Batch groups the assets destined for one remote folder; each batch maps
// to one initiate call.
type Batch struct {
	RemoteFolder string
	Assets       []*Asset
}

// Tree is the full local-to-remote mapping for one upload invocation.
type Tree struct {
	root        *Directory
	directories []*Directory
	assets      []*Asset
}

// Options controls tree building.
type Options struct {
	// LocalRoot is the walked local directory.
	LocalRoot string
	// TargetFolder is the remote folder the local root maps onto, e.g.
	// "/content/dam/my-project".
	TargetFolder string
	// MaxFiles caps the number of uploadable files; defaults to
	// DefaultMaxFiles.
	MaxFiles int
}

// Build cleanses every walked name and assembles the remote hierarchy.
func Build(ctx context.Context, walked walker.Result, cleanser *naming.Cleanser, options Options) (*Tree, error) {
	maxFiles := options.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if len(walked.Files) > maxFiles {
		return nil, fmt.Errorf("%d files found, limit is %d: %w", len(walked.Files), maxFiles, ErrTooManyFiles)
	}

	localRoot, err := filepath.Abs(options.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}
	targetFolder := strings.TrimSuffix(options.TargetFolder, "/")
	if targetFolder == "" {
		return nil, fmt.Errorf("target folder must not be empty")
	}

	root := &Directory{
		LocalPath: localRoot,
		NodeName:  strings.TrimPrefix(targetFolder, "/"),
		Title:     filepath.Base(localRoot),
		remote:    targetFolder,
	}

	t := &Tree{root: root}
	byLocal := map[string]*Directory{localRoot: root}

	// walker output is sorted, so parents are always seen before children
	dirs := append([]string{}, walked.Directories...)
	sort.Strings(dirs)
	for _, dir := range dirs {
		parent, ok := byLocal[filepath.Dir(dir)]
		if !ok {
			return nil, fmt.Errorf("directory %s has no walked parent", dir)
		}

		rawName := filepath.Base(dir)
		nodeName, err := cleanser.Cleanse(ctx, naming.KindFolder, rawName)
		if err != nil {
			return nil, err
		}

		descriptor := &Directory{
			LocalPath: dir,
			NodeName:  nodeName,
			Title:     rawName,
			parent:    parent,
		}
		byLocal[dir] = descriptor
		t.directories = append(t.directories, descriptor)
	}

	for _, file := range walked.Files {
		parent, ok := byLocal[filepath.Dir(file.Path)]
		if !ok {
			return nil, fmt.Errorf("file %s has no walked parent directory", file.Path)
		}

		nodeName, err := cleanser.Cleanse(ctx, naming.KindFile, filepath.Base(file.Path))
		if err != nil {
			return nil, err
		}

		t.assets = append(t.assets, &Asset{
			LocalPath:    file.Path,
			Size:         file.Size,
			NodeName:     nodeName,
			RemoteFolder: parent.RemotePath(),
		})
	}

	return t, nil
}

// Root returns the descriptor for the target folder itself.
func (t *Tree) Root() *Directory {
	return t.root
}

// Directories returns the folders to create beneath the root, parents
// before children.
func (t *Tree) Directories() []*Directory {
	return t.directories
}

// Assets returns every file to upload.
func (t *Tree) Assets() []*Asset {
	return t.assets
}

// Batches groups the assets by remote folder, ordered by folder path.
func (t *Tree) Batches() []*Batch {
	byFolder := map[string]*Batch{}
	var order []string
	for _, asset := range t.assets {
		b, ok := byFolder[asset.RemoteFolder]
		if !ok {
			b = &Batch{RemoteFolder: asset.RemoteFolder}
			byFolder[asset.RemoteFolder] = b
			order = append(order, asset.RemoteFolder)
		}
		b.Assets = append(b.Assets, asset)
	}

	sort.Strings(order)
	batches := make([]*Batch, 0, len(order))
	for _, folder := range order {
		batches = append(batches, byFolder[folder])
	}
	return batches
}
