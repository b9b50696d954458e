package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/test-integration/scm-server/helpers"
)

func tagNames(body []byte) []string {
	var tags backend.Tags
	Expect(json.Unmarshal(body, &tags)).To(Succeed())
	return tags.Names()
}

var _ = Describe("Repository Commands", Label("repositories"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
		workingCopy  *helpers.GitTestRepository
	)

	BeforeEach(func() {
		tempDir = createTempDir("scm-repositories-")
		serverHelper = helpers.NewServerTestHelper(ctx, helpers.WriteConfigYAML(tempDir))
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)

		status, body := serverHelper.MustDo(http.MethodPost, "/api/v1/repositories",
			model.Repository{Name: "core", Description: "core libraries"})
		Expect(status).To(Equal(http.StatusCreated), string(body))

		workingCopy = helpers.OpenRepository(helpers.RepositoriesRoot(tempDir), "core")
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		cleanupTempDir(tempDir)
	})

	It("should serve cached tags until the cache is bypassed", func() {
		first := workingCopy.CommitFile("README.md", "# core\n", "initial import")
		workingCopy.Tag("v1.0.0", first)

		status, body := serverHelper.MustDo(http.MethodGet, "/api/v1/repositories/core/tags", nil)
		Expect(status).To(Equal(http.StatusOK), string(body))
		Expect(tagNames(body)).To(ConsistOf("v1.0.0"))

		second := workingCopy.CommitFile("CHANGELOG.md", "1.1.0\n", "release 1.1.0")
		workingCopy.Tag("v1.1.0", second)

		status, body = serverHelper.MustDo(http.MethodGet, "/api/v1/repositories/core/tags", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(tagNames(body)).To(ConsistOf("v1.0.0"))

		status, body = serverHelper.MustDo(http.MethodGet, "/api/v1/repositories/core/tags?nocache=true", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(tagNames(body)).To(ConsistOf("v1.0.0", "v1.1.0"))
	})

	It("should page through changesets", func() {
		for i := 1; i <= 3; i++ {
			workingCopy.CommitFile(fmt.Sprintf("file-%d.txt", i), "content\n", fmt.Sprintf("commit %d", i))
		}

		status, body := serverHelper.MustDo(http.MethodGet, "/api/v1/repositories/core/changesets?start=1&limit=1", nil)
		Expect(status).To(Equal(http.StatusOK), string(body))

		var page backend.ChangesetPagingResult
		Expect(json.Unmarshal(body, &page)).To(Succeed())
		Expect(page.Total).To(Equal(3))
		Expect(page.Changesets).To(HaveLen(1))
		Expect(page.Changesets[0].Description).To(Equal("commit 2"))

		status, body = serverHelper.MustDo(http.MethodGet, "/api/v1/repositories/core/branches", nil)
		Expect(status).To(Equal(http.StatusOK), string(body))
		var branches backend.Branches
		Expect(json.Unmarshal(body, &branches)).To(Succeed())
		Expect(branches.Branches).To(HaveLen(1))
		Expect(branches.Branches[0].Name).To(Equal("master"))
	})

	It("should accept hook notifications with the shared token", func() {
		node := workingCopy.CommitFile("README.md", "# core\n", "initial import")
		path := "/hook/git/core/POST_RECEIVE?node=" + node.String()

		status, _, err := serverHelper.Do(http.MethodGet, path, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusUnauthorized))

		header := http.Header{}
		header.Set("X-SCM-Hook-Token", helpers.HookToken)
		status, body, err := serverHelper.Do(http.MethodGet, path, nil, header)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK), string(body))

		status, _, err = serverHelper.Do(http.MethodGet, "/hook/git/missing/POST_RECEIVE?node=abc", nil, header)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(http.StatusNotFound))
	})
})
