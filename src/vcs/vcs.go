package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrNoCommits = errors.New("repository has no commits")
	ErrNotFound  = errors.New("file not found at this version")
)

type Signature struct {
	Name  string
	Email string
}

type Signatures struct {
	Author    Signature
	Committer Signature
}

/*
Who a commit is attributed to. Users are recorded by their numeric id, so
renaming an account does not rewrite history. Changes made without a logged-in
user are attributed to the bot account.
*/
func CommitAuthor(current *models.User, bot models.User) Signatures {
	user := bot
	if current != nil {
		user = *current
	}
	sig := Signature{
		Name:  strconv.Itoa(user.ID),
		Email: user.Email,
	}
	return Signatures{Author: sig, Committer: sig}
}

// A content's draft repository, with a work tree on disk.
type Repo struct {
	path string
	repo *git.Repository
}

func Init(path string) (*Repo, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, oops.New(err, "failed to create repository directory")
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, oops.New(err, "failed to init repository at %s", path)
	}
	return &Repo{path: path, repo: repo}, nil
}

func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, oops.New(err, "failed to open repository at %s", path)
	}
	return &Repo{path: path, repo: repo}, nil
}

// Opens the repository at path, creating it if needed.
func OpenOrInit(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Init(path)
	} else if err != nil {
		return nil, oops.New(err, "failed to open repository at %s", path)
	}
	return &Repo{path: path, repo: repo}, nil
}

func (r *Repo) Path() string {
	return r.path
}

type Changes struct {
	// Slash-separated paths relative to the repository root.
	Write  map[string][]byte
	Remove []string
}

// Applies changes to the work tree and commits them. Returns the new commit id.
func (r *Repo) Commit(changes Changes, message string, sigs Signatures) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", oops.New(err, "failed to get work tree")
	}

	paths := make([]string, 0, len(changes.Write))
	for p := range changes.Write {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		full := filepath.Join(r.path, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return "", oops.New(err, "failed to create directory for %s", p)
		}
		if err := os.WriteFile(full, changes.Write[p], 0644); err != nil {
			return "", oops.New(err, "failed to write %s", p)
		}
		if _, err := wt.Add(p); err != nil {
			return "", oops.New(err, "failed to stage %s", p)
		}
	}
	for _, p := range changes.Remove {
		if _, err := wt.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", oops.New(err, "failed to remove %s", p)
		}
	}

	now := time.Now()
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: sigs.Author.Name, Email: sigs.Author.Email, When: now},
		Committer:         &object.Signature{Name: sigs.Committer.Name, Email: sigs.Committer.Email, When: now},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", oops.New(err, "failed to commit")
	}
	return hash.String(), nil
}

func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", oops.New(ErrNoCommits, "%s", r.path)
	} else if err != nil {
		return "", oops.New(err, "failed to read HEAD")
	}
	return ref.Hash().String(), nil
}

func (r *Repo) commit(sha string) (*object.Commit, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, oops.New(err, "failed to find commit %s", sha)
	}
	return commit, nil
}

// Returns the contents of a file as of commit sha.
func (r *Repo) ReadFile(sha, path string) ([]byte, error) {
	commit, err := r.commit(sha)
	if err != nil {
		return nil, err
	}
	file, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, oops.New(ErrNotFound, "%s at %s", path, sha)
	} else if err != nil {
		return nil, oops.New(err, "failed to read %s at %s", path, sha)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, oops.New(err, "failed to read %s at %s", path, sha)
	}
	return []byte(contents), nil
}

// Lists every file path as of commit sha, sorted.
func (r *Repo) ListTree(sha string) ([]string, error) {
	commit, err := r.commit(sha)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, oops.New(err, "failed to read tree of %s", sha)
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, oops.New(err, "failed to list files of %s", sha)
	}
	sort.Strings(paths)
	return paths, nil
}

// Author and message of commit sha.
func (r *Repo) CommitInfo(sha string) (Signature, string, error) {
	commit, err := r.commit(sha)
	if err != nil {
		return Signature{}, "", err
	}
	return Signature{Name: commit.Author.Name, Email: commit.Author.Email}, strings.TrimSpace(commit.Message), nil
}
