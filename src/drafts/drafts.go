package drafts

import (
	"errors"
	"path"
	"path/filepath"

	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/vcs"
	"git.handmade.network/hmn/edu/src/versioned"
)

const ManifestFile = "manifest.json"

// Where the draft repository of a content lives under root.
func RepoPath(root string, content *models.Content) string {
	return filepath.Join(root, content.Slug)
}

/*
Commits tree to repo: the manifest plus one Markdown file per non-empty text,
laid out after the current slugs. Files of the previous version that the new
layout no longer uses are removed. Updates the paths stored in tree, and its
CurrentVersion to the new commit.
*/
func Save(repo *vcs.Repo, tree *versioned.Content, message string, sigs vcs.Signatures) (string, error) {
	files := map[string][]byte{}
	err := versioned.Walk(&tree.Container, func(n versioned.Node) error {
		switch n := n.(type) {
		case *versioned.Container:
			n.IntroductionPath = textFile(files, n.Path(true), "introduction.md", n.Introduction)
			n.ConclusionPath = textFile(files, n.Path(true), "conclusion.md", n.Conclusion)
		case *versioned.Extract:
			n.TextPath = textFile(files, n.Parent().Path(true), n.Slug+".md", n.Text)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	data, err := manifest.Marshal(tree)
	if err != nil {
		return "", err
	}
	files[ManifestFile] = data

	var removed []string
	head, err := repo.Head()
	if err == nil {
		previous, err := repo.ListTree(head)
		if err != nil {
			return "", err
		}
		for _, p := range previous {
			if _, kept := files[p]; !kept {
				removed = append(removed, p)
			}
		}
	} else if !errors.Is(err, vcs.ErrNoCommits) {
		return "", err
	}

	sha, err := repo.Commit(vcs.Changes{Write: files, Remove: removed}, message, sigs)
	if err != nil {
		return "", oops.New(err, "failed to save draft of %q", tree.Slug)
	}
	tree.CurrentVersion = sha
	return sha, nil
}

func textFile(files map[string][]byte, dir, name, text string) string {
	if text == "" {
		return ""
	}
	p := path.Join(dir, name)
	files[p] = []byte(text)
	return p
}

// Loads the draft as of commit sha, texts included.
func Load(repo *vcs.Repo, sha string, opts manifest.ParseOptions) (*versioned.Content, error) {
	data, err := repo.ReadFile(sha, ManifestFile)
	if err != nil {
		return nil, err
	}
	opts.Sha = sha
	tree, err := manifest.ParseJSON(data, opts)
	if err != nil {
		return nil, err
	}

	read := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		text, err := repo.ReadFile(sha, p)
		if err != nil {
			return "", err
		}
		return string(text), nil
	}
	err = versioned.Walk(&tree.Container, func(n versioned.Node) error {
		var err error
		switch n := n.(type) {
		case *versioned.Container:
			if n.Introduction, err = read(n.IntroductionPath); err != nil {
				return err
			}
			n.Conclusion, err = read(n.ConclusionPath)
		case *versioned.Extract:
			n.Text, err = read(n.TextPath)
		}
		return err
	})
	if err != nil {
		return nil, oops.New(err, "failed to load texts of %q", tree.Slug)
	}
	return tree, nil
}

// Loads the most recent draft.
func LoadHead(repo *vcs.Repo, opts manifest.ParseOptions) (*versioned.Content, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	return Load(repo, head, opts)
}
