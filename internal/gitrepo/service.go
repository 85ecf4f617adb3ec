// Package gitrepo keeps the published versions of every page in its own git
// repository: one commit per publish on main, each tagged v<N>.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "document.json"
	mainBranch  = "main"
)

// ErrNotPublished is returned when a page has never been published.
var ErrNotPublished = errors.New("page has no published versions")

// Content is what a version records.
type Content struct {
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Document json.RawMessage `json:"document"`
}

// Version describes one published commit.
type Version struct {
	Hash      string    `json:"hash"`
	Tag       string    `json:"tag,omitempty"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Publish commits content as the next version of the page, creating the
// repository on first use. Publishing unchanged content returns the current
// head without a new commit.
func (s *Service) Publish(tenantID, pageID string, content Content, author, message string) (Version, error) {
	lock := s.pageLock(tenantID, pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(tenantID, pageID)
	if err != nil {
		return Version{}, err
	}

	if head, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true); err == nil {
		headCommit, err := repo.CommitObject(head.Hash())
		if err != nil {
			return Version{}, fmt.Errorf("load head commit: %w", err)
		}
		current, err := readContentFromCommit(headCommit)
		if err != nil {
			return Version{}, err
		}
		if !HasChanges(current, content) {
			return toVersion(headCommit, tagsByHash(repo)), nil
		}
	}

	hash, err := commit(repo, content, author, message)
	if err != nil {
		return Version{}, err
	}

	count, err := countCommits(repo, hash)
	if err != nil {
		return Version{}, err
	}
	tag := fmt.Sprintf("v%d", count)
	if _, err := repo.CreateTag(tag, hash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@pages.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
		Message: tag,
	}); err != nil && !errors.Is(err, git.ErrTagExists) {
		return Version{}, fmt.Errorf("create tag: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj, map[plumbing.Hash]string{hash: tag}), nil
}

// Versions lists published versions, newest first. A page that was never
// published has none.
func (s *Service) Versions(tenantID, pageID string, limit int) ([]Version, error) {
	lock := s.pageLock(tenantID, pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(tenantID, pageID)
	if errors.Is(err, ErrNotPublished) {
		return []Version{}, nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	tags := tagsByHash(repo)
	items := make([]Version, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersion(commitObj, tags))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Content returns what the page looked like at hash, a full or abbreviated
// commit hash.
func (s *Service) Content(tenantID, pageID, hash string) (Content, error) {
	lock := s.pageLock(tenantID, pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(tenantID, pageID)
	if err != nil {
		return Content{}, err
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

func (s *Service) repoPath(tenantID, pageID string) string {
	return filepath.Join(s.baseDir, tenantID, pageID)
}

func (s *Service) pageLock(tenantID, pageID string) *sync.Mutex {
	key := tenantID + "/" + pageID
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[key] = lock
	return lock
}

func (s *Service) open(tenantID, pageID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(tenantID, pageID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(tenantID, pageID string) (*git.Repository, error) {
	repo, err := s.open(tenantID, pageID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNotPublished) {
		return nil, err
	}

	path := s.repoPath(tenantID, pageID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}

	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@pages.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func countCommits(repo *git.Repository, from plumbing.Hash) (int, error) {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return 0, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()
	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return count, nil
}

func tagsByHash(repo *git.Repository) map[plumbing.Hash]string {
	tags := make(map[plumbing.Hash]string)
	iter, err := repo.Tags()
	if err != nil {
		return tags
	}
	defer iter.Close()
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tagObj, err := repo.TagObject(target); err == nil {
			target = tagObj.Target
		}
		tags[target] = ref.Name().Short()
		return nil
	})
	return tags
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// HasChanges compares two versions, ignoring JSON formatting.
func HasChanges(from, to Content) bool {
	if from.Title != to.Title || from.Slug != to.Slug {
		return true
	}
	return !bytes.Equal(normalizeDoc(from.Document), normalizeDoc(to.Document))
}

func toVersion(commitObj *object.Commit, tags map[plumbing.Hash]string) Version {
	return Version{
		Hash:      commitObj.Hash.String()[:7],
		Tag:       tags[commitObj.Hash],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func normalizeDoc(doc json.RawMessage) []byte {
	if len(doc) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
