package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the API envelope with statusCode.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// ListResponse writes a list with its total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{
		Rows:  rows,
		Total: total,
	})
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// AcceptedResponse writes a 202 response.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

// BadRequestResponse writes a 400 response.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// NotFoundResponse writes a 404 response.
func NotFoundResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusNotFound, data)
}

// ErrorResponse maps err to its status and writes it.
func ErrorResponse(c echo.Context, err error) error {
	appErr := FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		return DataResponse(c, appErr.Status, []*AppError{{Code: appErr.Code, Message: http.StatusText(appErr.Status)}})
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
