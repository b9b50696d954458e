package helpers

import (
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/onsi/gomega"
)

// GitTestRepository wraps the working copy of a provisioned repository
type GitTestRepository struct {
	Path string
	repo *gogit.Repository
}

// OpenRepository opens the working copy the server created for name
func OpenRepository(root, name string) *GitTestRepository {
	path := filepath.Join(root, name)
	repo, err := gogit.PlainOpen(path)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return &GitTestRepository{Path: path, repo: repo}
}

// CommitFile writes content to file and commits it
func (g *GitTestRepository) CommitFile(file, content, message string) plumbing.Hash {
	gomega.Expect(os.WriteFile(filepath.Join(g.Path, file), []byte(content), 0600)).To(gomega.Succeed())

	wt, err := g.repo.Worktree()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = wt.Add(file)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	sig := &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()}
	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return hash
}

// Tag creates a lightweight tag
func (g *GitTestRepository) Tag(name string, hash plumbing.Hash) {
	_, err := g.repo.CreateTag(name, hash, nil)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
}
