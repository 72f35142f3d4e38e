package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"famcal/internal/model"
	"famcal/internal/store"
)

// API error codes. The frontend switches on these, so they are part of the
// wire contract.
const (
	codeMissingParams      = "MISSING_PARAMS"
	codeInvalidDate        = "INVALID_DATE"
	codeInvalidTime        = "INVALID_TIME"
	codeInvalidView        = "INVALID_VIEW"
	codeRangeTooLarge      = "RANGE_TOO_LARGE"
	codeMissingTitle       = "MISSING_TITLE"
	codeInvalidMemberIDs   = "INVALID_MEMBER_IDS"
	codeInvalidSchedule    = "INVALID_SCHEDULE"
	codeInvalidRecurrence  = "INVALID_RECURRENCE"
	codeInvalidType        = "INVALID_TYPE"
	codeValidationFailed   = "VALIDATION_FAILED"
	codeInvalidBody        = "INVALID_BODY"
	codeInvalidURL         = "INVALID_URL"
	codeFetchFailed        = "FETCH_FAILED"
	codeNotFound           = "NOT_FOUND"
	codeNotRecurring       = "NOT_RECURRING"
	codeDuplicateException = "DUPLICATE_EXCEPTION"
	codeMissingPIN         = "MISSING_PIN"
	codeInvalidPIN         = "INVALID_PIN"
	codeUnauthorized       = "UNAUTHORIZED"
	codeInternal           = "INTERNAL_ERROR"
)

const (
	msgInvalidDate   = "날짜 형식은 YYYY-MM-DD여야 합니다."
	msgEventNotFound = "일정을 찾을 수 없습니다."
	msgInternal      = "서버 오류가 발생했습니다."
)

type errorBody struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Fields  []model.FieldError `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// writeValidation reports field errors. The top-level code and message follow
// the first failing field so clients that only look at the code still get a
// precise one.
func writeValidation(w http.ResponseWriter, errs []model.FieldError) {
	code, msg := codeValidationFailed, "입력값이 올바르지 않습니다."
	if len(errs) > 0 {
		code, msg = describeField(errs[0])
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    code,
		Message: msg,
		Fields:  errs,
	}})
}

func describeField(fe model.FieldError) (code, msg string) {
	f := fe.Field
	switch {
	case f == "title":
		if fe.Msg == "required" {
			return codeMissingTitle, "제목이 필요합니다."
		}
		return codeMissingTitle, fmt.Sprintf("제목은 %d자 이하여야 합니다.", model.MaxTitleLen)
	case f == "startTime":
		return codeInvalidTime, "시작 시간 형식은 HH:mm이어야 합니다."
	case f == "endTime":
		if strings.HasPrefix(fe.Msg, "must be after") {
			return codeInvalidTime, "종료 시간은 시작 시간 이후여야 합니다."
		}
		return codeInvalidTime, "종료 시간 형식은 HH:mm이어야 합니다."
	case strings.HasPrefix(f, "memberIds"):
		return codeInvalidMemberIDs, "유효하지 않은 구성원 ID입니다."
	case f == "date", f == "recurrence.startDate", f == "recurrence.endDate":
		return codeInvalidDate, msgInvalidDate
	case strings.HasPrefix(f, "recurrence"):
		return codeInvalidRecurrence, "반복 요일은 1(월)부터 7(일) 사이여야 합니다."
	case f == "type":
		return codeInvalidType, "type은 'cancel' 또는 'modify'이어야 합니다."
	default:
		return codeValidationFailed, f + ": " + fe.Msg
	}
}

// writeDecodeError maps JSON decoding failures of event payloads.
func writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedDate):
		writeError(w, http.StatusBadRequest, codeInvalidDate, msgInvalidDate)
	case errors.Is(err, model.ErrScheduleConflict):
		writeError(w, http.StatusBadRequest, codeInvalidSchedule, "date와 recurrence 중 하나만 지정해야 합니다.")
	case errors.Is(err, model.ErrScheduleMissing):
		writeError(w, http.StatusBadRequest, codeInvalidSchedule, "date 또는 recurrence가 필요합니다.")
	case errors.Is(err, model.ErrUnsupportedRecurrence):
		writeError(w, http.StatusBadRequest, codeInvalidRecurrence, "recurrence.type은 'weekly'만 지원합니다.")
	default:
		writeError(w, http.StatusBadRequest, codeInvalidBody, "요청 본문을 해석할 수 없습니다.")
	}
}

// writeStoreError maps repository errors; anything unexpected is logged and
// reported as 500.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, msgEventNotFound)
	case errors.Is(err, store.ErrDuplicateException):
		writeError(w, http.StatusConflict, codeDuplicateException, "해당 날짜에 이미 예외가 있습니다.")
	default:
		logInternal(what, err)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
	}
}
