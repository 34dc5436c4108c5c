// internal/service/reservation/domain/reservation_test.go
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *AllocationRequest {
	return &AllocationRequest{
		TeacherID:       "t-1",
		TeacherName:     "Ana Torres",
		SubjectID:       "s-1",
		ReservationDate: "2026-09-01",
		UsageDate:       "2026-09-03",
		Lines:           []RequestLine{{MaterialID: "m-drill", Quantity: 2}},
	}
}

func TestNewReservationStartsActive(t *testing.T) {
	r, err := NewReservation(validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, "t-1", r.TeacherID)
	assert.False(t, r.CreatedAt.IsZero())
	// 分配行由引擎在事务内创建，工厂不预填
	assert.Empty(t, r.Allocations)
}

func TestNewReservationAllowsZeroLines(t *testing.T) {
	req := validRequest()
	req.Lines = nil

	r, err := NewReservation(req)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, r.Status)
}

func TestNewReservationAcceptsUsageBeforeReservationDate(t *testing.T) {
	// 日期先后不做校验，补登历史预约是合法场景
	req := validRequest()
	req.ReservationDate = "2026-09-10"
	req.UsageDate = "2026-09-01"

	_, err := NewReservation(req)
	require.NoError(t, err)
}

func TestNewReservationRejectsMissingFields(t *testing.T) {
	req := validRequest()
	req.SubjectID = ""

	_, err := NewReservation(req)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "missing required field: subject", validation.Msg)
}

func TestNewReservationRejectsNonPositiveLineQuantity(t *testing.T) {
	req := validRequest()
	req.Lines = append(req.Lines, RequestLine{MaterialID: "m-resin", Quantity: 0})

	_, err := NewReservation(req)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Msg, "m-resin")
}

func TestPrincipalRole(t *testing.T) {
	assert.True(t, Principal{Role: RoleAdministrator}.IsAdministrator())
	assert.False(t, Principal{Role: RoleInstructor}.IsAdministrator())
	assert.False(t, Principal{}.IsAdministrator())
}
