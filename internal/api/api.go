package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"clore-watch/internal/models"
	"clore-watch/internal/services/clore"
	"clore-watch/internal/services/monitor"
	"clore-watch/internal/store"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the boundary consumed by the chat front end and the
// alert delivery channel. All marketplace traffic still goes through the
// per-owner rate-limited clients.
type APIHandler struct {
	store      *store.Store
	registry   *clore.Registry
	cloreToUSD float64
}

func SetupRoutes(r *gin.RouterGroup, st *store.Store, registry *clore.Registry, cloreToUSD float64) *APIHandler {
	handler := &APIHandler{
		store:      st,
		registry:   registry,
		cloreToUSD: cloreToUSD,
	}

	users := r.Group("/users/:id")
	{
		users.GET("/orders", handler.ListOrders)
		users.GET("/orders/active", handler.ListActiveOrders)
		users.POST("/orders", handler.PlaceOrder)
		users.GET("/alerts/pending", handler.PendingAlerts)
		users.GET("/tasks", handler.ListTasks)
		users.POST("/tasks", handler.CreateTask)
		users.GET("/servers/search", handler.SearchServers)
		users.GET("/snapshots/export", handler.ExportSnapshots)
		users.POST("/deactivate", handler.DeactivateUser)
	}

	r.PATCH("/tasks/:id", handler.UpdateTask)
	r.POST("/alerts/:id/delivered", handler.MarkAlertDelivered)
	r.DELETE("/orders/:id", handler.CancelOrder)
	r.GET("/rates", handler.ListRates)

	return handler
}

func (h *APIHandler) userFromPath(c *gin.Context) (*models.User, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}
	user, err := h.store.Users.ByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return user, true
}

// ListOrders returns every order the ledger knows for a user
func (h *APIHandler) ListOrders(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	orders, err := h.store.Orders.Orders(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *APIHandler) ListActiveOrders(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	orders, err := h.store.Orders.ActiveOrders(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

type placeOrderRequest struct {
	ServerID  int               `json:"server_id" binding:"required"`
	Image     string            `json:"image"`
	OrderType string            `json:"order_type"`
	SpotPrice *float64          `json:"spot_price"`
	Ports     map[string]string `json:"ports"`
	Env       map[string]string `json:"env"`
	Command   string            `json:"command"`
}

// PlaceOrder rents a server on the user's behalf
func (h *APIHandler) PlaceOrder(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	if user.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user has no API key configured"})
		return
	}

	var body placeOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Image == "" {
		body.Image = "cloreai/jupyter:ubuntu24.04-v2"
	}
	if body.OrderType == "" {
		body.OrderType = clore.OrderTypeOnDemand
	}
	if len(body.Ports) == 0 {
		body.Ports = map[string]string{"22": "tcp", "8888": "http"}
	}

	req := clore.CreateOrderRequest{
		Currency:          clore.CurrencyClore,
		Image:             body.Image,
		RentingServer:     body.ServerID,
		Type:              body.OrderType,
		SpotPrice:         body.SpotPrice,
		Ports:             body.Ports,
		Env:               body.Env,
		Command:           body.Command,
		JupyterToken:      user.DefaultJupyterToken,
		SSHPassword:       user.DefaultSSHPassword,
		AutosshEntrypoint: true,
	}

	client := h.registry.Get(user.ID, user.APIKey)
	if err := client.CreateOrder(c.Request.Context(), req); err != nil {
		respondUpstreamError(c, err)
		return
	}

	// The ledger picks the new order up on the next reconciliation pass
	c.JSON(http.StatusAccepted, gin.H{"status": "order placed"})
}

// CancelOrder cancels a rental upstream and marks the ledger row
func (h *APIHandler) CancelOrder(c *gin.Context) {
	cloreOrderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.store.Orders.Get(cloreOrderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	user, err := h.store.Users.ByID(order.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "owner not found"})
		return
	}

	client := h.registry.Get(user.ID, user.APIKey)
	if err := client.CancelOrder(c.Request.Context(), cloreOrderID, c.Query("reason")); err != nil {
		respondUpstreamError(c, err)
		return
	}
	if err := h.store.Orders.MarkCancelled(cloreOrderID, time.Now().UTC()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// PendingAlerts is drained by the delivery channel
func (h *APIHandler) PendingAlerts(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	alerts, err := h.store.Alerts.Pending(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

type deliveredRequest struct {
	Error string `json:"error"`
}

// MarkAlertDelivered is the delivery channel's callback
func (h *APIHandler) MarkAlertDelivered(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	var body deliveredRequest
	_ = c.ShouldBindJSON(&body)

	if err := h.store.Alerts.MarkDelivered(uint(id), body.Error); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type taskRequest struct {
	Name             string           `json:"name"`
	Criteria         monitor.Criteria `json:"criteria"`
	AutoRent         bool             `json:"auto_rent"`
	MaxServers       int              `json:"max_servers"`
	DockerTemplateID *uint            `json:"docker_template_id"`
}

func (h *APIHandler) ListTasks(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	tasks, err := h.store.Tasks.TasksForUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *APIHandler) CreateTask(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	var body taskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MaxServers < 1 {
		body.MaxServers = 1
	}
	filters, err := body.Criteria.Encode()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := &models.HuntTask{
		UserID:           user.ID,
		Name:             body.Name,
		Filters:          filters,
		IsActive:         true,
		AutoRent:         body.AutoRent,
		MaxServers:       body.MaxServers,
		DockerTemplateID: body.DockerTemplateID,
	}
	if err := h.store.Tasks.Create(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

type taskUpdateRequest struct {
	Name     *string           `json:"name"`
	Criteria *monitor.Criteria `json:"criteria"`
	IsActive *bool             `json:"is_active"`
	AutoRent *bool             `json:"auto_rent"`
}

// UpdateTask edits user-owned fields. The counters stay with the engine.
func (h *APIHandler) UpdateTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.store.Tasks.Get(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	var body taskUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Name != nil {
		task.Name = *body.Name
	}
	if body.Criteria != nil {
		filters, err := body.Criteria.Encode()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		task.Filters = filters
	}
	if body.IsActive != nil {
		// Reactivation below a met quota is allowed; the hunt loop
		// still refuses to place orders past max_servers
		task.IsActive = *body.IsActive
	}
	if body.AutoRent != nil {
		task.AutoRent = *body.AutoRent
	}

	if err := h.store.Tasks.Update(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// SearchServers runs the match engine against a live marketplace snapshot
// for an interactive query
func (h *APIHandler) SearchServers(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}

	if user.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user has no API key configured"})
		return
	}

	criteria := monitor.Criteria{}
	if gpus := c.Query("gpu_models"); gpus != "" {
		criteria.GPUModels = strings.Split(gpus, ",")
	}
	if v := c.Query("max_price_per_gpu"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price_per_gpu"})
			return
		}
		criteria.MaxPricePerGPU = &f
	}
	if v := c.Query("min_gpu_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_gpu_count"})
			return
		}
		criteria.MinGPUCount = &n
	}
	if v := c.Query("min_ram_gb"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_ram_gb"})
			return
		}
		criteria.MinRAMGB = &f
	}
	if locations := c.Query("locations"); locations != "" {
		criteria.Locations = strings.Split(locations, ",")
	}
	if v := c.Query("min_rating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_rating"})
			return
		}
		criteria.MinRating = &f
	}

	client := h.registry.Get(user.ID, user.APIKey)
	servers, err := client.GetMarketplace(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}

	matches := monitor.MatchServers(servers, criteria, h.cloreToUSD)
	c.JSON(http.StatusOK, gin.H{"servers": matches, "total": len(matches)})
}

// DeactivateUser stops the watchers for a user and disposes their client
func (h *APIHandler) DeactivateUser(c *gin.Context) {
	user, ok := h.userFromPath(c)
	if !ok {
		return
	}
	if err := h.store.Users.Deactivate(user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.registry.Drop(user.ID)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// ListRates returns the cached exchange rates
func (h *APIHandler) ListRates(c *gin.Context) {
	rates, err := h.store.Rates.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

// respondUpstreamError turns client failures into short human-readable
// messages; raw upstream payloads never reach the caller
func respondUpstreamError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *clore.ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
	case *clore.APIError:
		status := http.StatusBadGateway
		if e.Kind == clore.KindInvalidToken {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": "marketplace request failed: " + e.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
