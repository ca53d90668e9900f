package controller

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"deltaframe/internal/dataframe"
	"deltaframe/internal/model"
	"deltaframe/internal/security"
	"deltaframe/internal/service"
	"deltaframe/internal/utils"
	"deltaframe/pkg/response"
)

// ArrowStreamMediaType selects an Arrow IPC stream from the read endpoint
const ArrowStreamMediaType = "application/vnd.apache.arrow.stream"

type TableController struct {
	tableService service.TableService
	usage        *service.UsageCollector
	validator    *validator.Validate
	logger       *zap.Logger
}

func NewTableController(tableService service.TableService, usage *service.UsageCollector, logger *zap.Logger) *TableController {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	// report request fields by their JSON or query names
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name, _, _ := strings.Cut(field.Tag.Get(key), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return field.Name
	})

	return &TableController{
		tableService: tableService,
		usage:        usage,
		validator:    validate,
		logger:       logger,
	}
}

// RegisterTable godoc
// @Summary Register a Delta table
// @Description Adds a named catalog entry for a Delta table location. The
// location must hold a readable _delta_log.
// @Tags tables
// @Accept json
// @Produce json
// @Param request body model.RegisterTableRequest true "Table registration"
// @Success 201 {object} response.StandardResponse{data=model.Table}
// @Failure 404 {object} response.StandardResponse
// @Failure 409 {object} response.StandardResponse
// @Router /api/v1/tables [post]
func (tc *TableController) RegisterTable(c *gin.Context) {
	var req model.RegisterTableRequest
	if !tc.bind(c, &req) {
		return
	}

	table, err := tc.tableService.RegisterTable(c.Request.Context(), &req)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.SuccessResponse(table, getCorrelationID(c)))
}

// ListTables godoc
// @Summary List registered tables
// @Tags tables
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.StandardResponse{data=service.ListTablesResponse}
// @Router /api/v1/tables [get]
func (tc *TableController) ListTables(c *gin.Context) {
	var req service.ListTablesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		tc.sendError(c, utils.NewErrorBuilder(utils.ErrCodeInvalidParameters).WithDetails(err.Error()).Build())
		return
	}
	if err := tc.validator.Struct(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(err, getCorrelationID(c)))
		return
	}

	list, err := tc.tableService.ListTables(c.Request.Context(), &req)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(list, getCorrelationID(c)))
}

// GetTable godoc
// @Summary Get a registered table
// @Tags tables
// @Produce json
// @Param name path string true "Table name"
// @Success 200 {object} response.StandardResponse{data=model.Table}
// @Failure 404 {object} response.StandardResponse
// @Router /api/v1/tables/{name} [get]
func (tc *TableController) GetTable(c *gin.Context) {
	name := c.Param("name")
	if !tc.authorizeTable(c, name) {
		return
	}

	table, err := tc.tableService.GetTable(c.Request.Context(), name)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(table, getCorrelationID(c)))
}

// DeleteTable godoc
// @Summary Remove a table from the catalog
// @Description Only the catalog entry is removed; table data is untouched.
// @Tags tables
// @Param name path string true "Table name"
// @Success 200 {object} response.StandardResponse
// @Failure 404 {object} response.StandardResponse
// @Router /api/v1/tables/{name} [delete]
func (tc *TableController) DeleteTable(c *gin.Context) {
	name := c.Param("name")
	if err := tc.tableService.DeleteTable(c.Request.Context(), name); err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessMessageResponse("Table deleted", getCorrelationID(c)))
}

// ResolveTable godoc
// @Summary Resolve a table version into its live data files
// @Tags tables
// @Accept json
// @Produce json
// @Param request body model.ResolveRequest true "Resolution request"
// @Success 200 {object} response.StandardResponse{data=delta.ResolvedFileSet}
// @Failure 400 {object} response.StandardResponse
// @Failure 404 {object} response.StandardResponse
// @Router /api/v1/resolve [post]
func (tc *TableController) ResolveTable(c *gin.Context) {
	var req model.ResolveRequest
	if !tc.bind(c, &req) || !tc.authorizeRequest(c, &req) {
		return
	}

	set, err := tc.tableService.ResolveFiles(c.Request.Context(), &req)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(set, getCorrelationID(c)))
}

// ReadTable godoc
// @Summary Read rows of a table version
// @Description Returns up to `limit` rows as JSON, or as an Arrow IPC
// stream when the Accept header is application/vnd.apache.arrow.stream.
// @Tags tables
// @Accept json
// @Produce json
// @Produce application/vnd.apache.arrow.stream
// @Param request body model.ReadRequest true "Read request"
// @Success 200 {object} response.StandardResponse{data=model.ReadResponse}
// @Failure 400 {object} response.StandardResponse
// @Failure 404 {object} response.StandardResponse
// @Router /api/v1/read [post]
func (tc *TableController) ReadTable(c *gin.Context) {
	var req model.ReadRequest
	if !tc.bind(c, &req) || !tc.authorizeRequest(c, &req.ResolveRequest) {
		return
	}

	result, err := tc.tableService.Read(c.Request.Context(), &req)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, ArrowStreamMediaType) == ArrowStreamMediaType {
		tc.writeArrow(c, result)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(toReadResponse(result), getCorrelationID(c)))
}

// TableHistory godoc
// @Summary List the commits of a table, newest first
// @Tags tables
// @Produce json
// @Param name path string true "Table name"
// @Param limit query int false "Maximum number of commits"
// @Success 200 {object} response.StandardResponse{data=[]delta.CommitRecord}
// @Router /api/v1/tables/{name}/history [get]
func (tc *TableController) TableHistory(c *gin.Context) {
	name := c.Param("name")
	if !tc.authorizeTable(c, name) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			tc.sendError(c, utils.NewErrorBuilder(utils.ErrCodeInvalidParameters).
				WithDetails("limit must be a non-negative integer").Build())
			return
		}
		limit = parsed
	}

	commits, err := tc.tableService.History(c.Request.Context(), name, limit)
	if err != nil {
		tc.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse(commits, getCorrelationID(c)))
}

// UsageStats returns per-table read statistics of this process
func (tc *TableController) UsageStats(c *gin.Context) {
	if tc.usage == nil {
		c.JSON(http.StatusOK, response.SuccessResponse(service.UsageSummary{Tables: []service.TableUsage{}}, getCorrelationID(c)))
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(tc.usage.Summary(), getCorrelationID(c)))
}

func (tc *TableController) writeArrow(c *gin.Context, result *service.ReadResult) {
	rec, err := result.Table.ToArrow(memory.NewGoAllocator())
	if err != nil {
		tc.sendError(c, err)
		return
	}
	defer rec.Release()

	c.Header("Content-Type", ArrowStreamMediaType)
	c.Header("X-Delta-Version", strconv.FormatInt(result.Metadata.Version, 10))
	c.Header("X-Row-Count", strconv.Itoa(result.Metadata.RowCount))
	c.Header("X-Truncated", strconv.FormatBool(result.Metadata.Truncated))
	c.Status(http.StatusOK)
	if err := dataframe.WriteIPC(c.Writer, rec); err != nil {
		// headers are already sent
		tc.logger.Error("Failed to stream arrow response",
			zap.String("correlation_id", getCorrelationID(c)),
			zap.Error(err))
	}
}

func (tc *TableController) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		tc.sendError(c, utils.NewErrorBuilder(utils.ErrCodeInvalidJSON).WithDetails(err.Error()).Build())
		return false
	}
	if err := tc.validator.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(err, getCorrelationID(c)))
		return false
	}
	return true
}

func (tc *TableController) authorizeRequest(c *gin.Context, req *model.ResolveRequest) bool {
	if req.Table != "" {
		return tc.authorizeTable(c, req.Table)
	}
	if !security.CanReadLocations(c) {
		tc.sendError(c, utils.NewAuthorizationError("Token does not grant access to unregistered locations"))
		return false
	}
	return true
}

func (tc *TableController) authorizeTable(c *gin.Context, name string) bool {
	if !security.CanReadTable(c, name) {
		tc.sendError(c, utils.NewAuthorizationError("Token does not grant access to table "+name))
		return false
	}
	return true
}

func (tc *TableController) sendError(c *gin.Context, err error) {
	appErr := utils.FromResolveError(err)
	status := utils.GetErrorStatus(appErr)
	if status >= http.StatusInternalServerError {
		tc.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("correlation_id", getCorrelationID(c)),
			zap.Error(err))
	}
	c.JSON(status, response.ErrorResponseFromAppError(appErr, getCorrelationID(c)))
}

func toReadResponse(result *service.ReadResult) *model.ReadResponse {
	columns := make([]model.ColumnInfo, 0, len(result.Table.Fields))
	for _, field := range result.Table.Fields {
		columns = append(columns, model.ColumnInfo{
			Name:     field.Name,
			Type:     field.Type,
			Nullable: field.Nullable,
		})
	}
	return &model.ReadResponse{
		Columns:  columns,
		Rows:     result.Table.Rows,
		Metadata: result.Metadata,
	}
}

func getCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get("correlation_id"); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}
