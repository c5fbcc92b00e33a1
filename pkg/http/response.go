package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the APIResponse envelope.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ListResponse writes rows with the total before any limit was applied.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse renders err through FromPipelineError.
func AppErrorResponse(c echo.Context, err error) error {
	if err == nil {
		return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
	appErr := FromPipelineError(err)
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
