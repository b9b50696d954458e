package integration

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/test-integration/scm-server/helpers"
)

type groupList struct {
	Items []model.Group `json:"items"`
	Count int           `json:"count"`
}

var _ = Describe("Entity Management", Label("entities"), func() {
	var (
		tempDir      string
		configFile   string
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("scm-entities-")
		configFile = helpers.WriteConfigYAML(tempDir)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		cleanupTempDir(tempDir)
	})

	It("should manage the group lifecycle", func() {
		status, body := serverHelper.MustDo(http.MethodPost, "/api/v1/groups",
			model.Group{Name: "developers", Description: "all developers", Members: []string{"trillian"}})
		Expect(status).To(Equal(http.StatusCreated), string(body))

		status, body = serverHelper.MustDo(http.MethodPost, "/api/v1/groups", model.Group{Name: "developers"})
		Expect(status).To(Equal(http.StatusConflict), string(body))

		status, body = serverHelper.MustDo(http.MethodPut, "/api/v1/groups/developers",
			model.Group{Name: "developers", Description: "core team", Members: []string{"trillian", "dent"}})
		Expect(status).To(Equal(http.StatusOK), string(body))

		status, body = serverHelper.MustDo(http.MethodGet, "/api/v1/groups/developers", nil)
		Expect(status).To(Equal(http.StatusOK))
		var group model.Group
		Expect(json.Unmarshal(body, &group)).To(Succeed())
		Expect(group.Description).To(Equal("core team"))
		Expect(group.Members).To(ConsistOf("trillian", "dent"))
		Expect(group.CreationDate).NotTo(BeNil())
		Expect(group.LastModified).NotTo(BeNil())

		status, _ = serverHelper.MustDo(http.MethodDelete, "/api/v1/groups/developers", nil)
		Expect(status).To(Equal(http.StatusNoContent))

		status, _ = serverHelper.MustDo(http.MethodGet, "/api/v1/groups/developers", nil)
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("should list groups by member", func() {
		for _, g := range []model.Group{
			{Name: "developers", Members: []string{"trillian"}},
			{Name: "testers", Members: []string{"dent"}},
			{Name: "admins", Members: []string{"trillian"}},
		} {
			status, body := serverHelper.MustDo(http.MethodPost, "/api/v1/groups", g)
			Expect(status).To(Equal(http.StatusCreated), string(body))
		}

		status, body := serverHelper.MustDo(http.MethodGet, "/api/v1/groups?member=trillian", nil)
		Expect(status).To(Equal(http.StatusOK))
		var list groupList
		Expect(json.Unmarshal(body, &list)).To(Succeed())
		Expect(list.Items).To(HaveLen(2))
		Expect([]string{list.Items[0].Name, list.Items[1].Name}).To(ConsistOf("developers", "admins"))
	})

	It("should keep entities across restarts", func() {
		status, body := serverHelper.MustDo(http.MethodPost, "/api/v1/users",
			model.User{Name: "trillian", DisplayName: "Tricia McMillan", Active: true})
		Expect(status).To(Equal(http.StatusCreated), string(body))

		Expect(serverHelper.StopServer()).To(Succeed())

		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)

		status, body = serverHelper.MustDo(http.MethodGet, "/api/v1/users/trillian", nil)
		Expect(status).To(Equal(http.StatusOK), string(body))
		var user model.User
		Expect(json.Unmarshal(body, &user)).To(Succeed())
		Expect(user.DisplayName).To(Equal("Tricia McMillan"))
	})
})
