package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"task-manager/internal/auth"
	"task-manager/internal/cache"
	"task-manager/internal/model"
	"task-manager/internal/service"
	"task-manager/internal/validation"
)

type handler struct {
	tasks      *service.TaskService
	categories *service.CategoryService
	accounts   *service.AccountService
	views      cache.ViewCache
	logger     *log.Logger
}

type statusInput struct {
	Status string `json:"status" form:"status"`
}

func (h *handler) register(c *gin.Context) {
	var input validation.Credentials
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	session, err := h.accounts.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, session)
}

func (h *handler) login(c *gin.Context) {
	var input validation.Credentials
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	session, err := h.accounts.Login(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, session)
}

func (h *handler) listTasks(c *gin.Context) {
	slot, served := h.serveCached(c, service.PathDashboard)
	if served {
		return
	}
	tasks, err := h.tasks.ListTasks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	h.respondCached(c, slot, tasks)
}

func (h *handler) createTask(c *gin.Context) {
	var input validation.TaskInput
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	task, err := h.tasks.CreateTask(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, task)
}

func (h *handler) getTask(c *gin.Context) {
	slot, served := h.serveCached(c, service.EditTaskPath(c.Param("id")))
	if served {
		return
	}
	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondCached(c, slot, task)
}

func (h *handler) updateTask(c *gin.Context) {
	var input validation.TaskInput
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	task, err := h.tasks.UpdateTask(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, task)
}

func (h *handler) updateTaskStatus(c *gin.Context) {
	var input statusInput
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	task, err := h.tasks.UpdateTaskStatus(c.Request.Context(), c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, task)
}

func (h *handler) deleteTask(c *gin.Context) {
	if err := h.tasks.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *handler) listCategories(c *gin.Context) {
	categories, err := h.categories.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	respond(c, http.StatusOK, categories)
}

func (h *handler) createCategory(c *gin.Context) {
	var input validation.CategoryInput
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{Message: msgInvalidBody})
		return
	}
	category, err := h.categories.CreateCategory(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, category)
}

// viewSlot is where a rendered view of path may be stored for the caller.
// gen is the caller's view generation read before the store was queried.
type viewSlot struct {
	userID string
	path   string
	gen    uint64
	ok     bool
}

// serveCached writes the caller's cached view of path, if any. Anonymous
// requests are never served from the cache. The returned slot is usable
// only when a generation could be read.
func (h *handler) serveCached(c *gin.Context, path string) (viewSlot, bool) {
	userID, ok := auth.IdentityFrom(c.Request.Context())
	if !ok || h.views == nil {
		return viewSlot{}, false
	}
	gen, err := h.views.Generation(c.Request.Context(), userID)
	if err != nil {
		h.logger.Warn("read view generation", "user_id", userID, "err", err)
		return viewSlot{}, false
	}
	slot := viewSlot{userID: userID, path: path, gen: gen, ok: true}

	view, hit, err := h.views.Get(c.Request.Context(), userID, path)
	if err != nil {
		h.logger.Warn("read cached view", "user_id", userID, "path", path, "err", err)
		return slot, false
	}
	if !hit {
		return slot, false
	}
	c.Header("X-View-Cache", "hit")
	c.Data(http.StatusOK, "application/json; charset=utf-8", view)
	return slot, true
}

// respondCached renders data as a success response and stores it in slot.
// The cache drops it if the caller's views were revalidated meanwhile.
func (h *handler) respondCached(c *gin.Context, slot viewSlot, data interface{}) {
	body, err := json.Marshal(actionResponse{Success: true, Data: data})
	if err != nil {
		h.logger.Error("render view", "path", slot.path, "err", err)
		c.JSON(http.StatusInternalServerError, actionResponse{Message: msgInternal})
		return
	}
	if slot.ok {
		if err := h.views.Set(c.Request.Context(), slot.userID, slot.path, slot.gen, body); err != nil {
			h.logger.Warn("store cached view", "user_id", slot.userID, "path", slot.path, "err", err)
		}
	}
	c.Header("X-View-Cache", "miss")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}
