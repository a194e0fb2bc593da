//go:build integration

package api_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixture is one isolated set of reference rows. Each test seeds its own
// branch so counts never see rows from other runs.
type fixture struct {
	BranchID     int64
	PatientID    string
	TherapistID  int64
	DepartmentID int64
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func seedFixture(t *testing.T) fixture {
	t.Helper()
	var f fixture

	require.NoError(t, db.Get(&f.BranchID,
		`INSERT INTO branches (name) VALUES ($1) RETURNING branch_id`, uniqueName("Branch")))
	require.NoError(t, db.Get(&f.DepartmentID,
		`INSERT INTO departments (name) VALUES ($1) RETURNING id`, uniqueName("Department")))
	require.NoError(t, db.Get(&f.TherapistID,
		`INSERT INTO therapist_team_members (first_name, last_name) VALUES ('Tess', 'Hall') RETURNING therapist_id`))
	_, err := db.Exec(`INSERT INTO therapist_branches (therapist_id, branch_id) VALUES ($1, $2)`, f.TherapistID, f.BranchID)
	require.NoError(t, err)
	require.NoError(t, db.Get(&f.PatientID,
		`INSERT INTO patients (firstname, lastname, legalgender, birthdate) VALUES ('Ann', 'Lee', 'F', '1990-05-01') RETURNING id`))

	return f
}

func (f fixture) appointment(start, end string) map[string]interface{} {
	return map[string]interface{}{
		"branchId":       f.BranchID,
		"patientId":      f.PatientID,
		"therapistId":    f.TherapistID,
		"createdById":    f.TherapistID,
		"departmentId":   f.DepartmentID,
		"startTime":      start,
		"endTime":        end,
		"purposeOfVisit": "Initial assessment",
	}
}

func createAppointment(t *testing.T, body map[string]interface{}) int64 {
	t.Helper()
	resp := makeRequest("POST", "/appointment", body, authToken)
	require.True(t, resp.IsSuccess(), "Failed to create appointment: %s", resp.Message)
	id := resp.GetInt("id")
	require.NotZero(t, id)
	return id
}
