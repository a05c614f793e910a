package store

import (
	"testing"
	"time"

	"clore-watch/internal/models"
)

func TestCreateTaskEnforcesMinimumQuota(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 3000)

	task := &models.HuntTask{UserID: user.ID, Name: "cheap 4090", IsActive: true, MaxServers: 0}
	if err := st.Tasks.Create(task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.MaxServers != 1 {
		t.Fatalf("expected quota raised to 1, got %d", task.MaxServers)
	}
}

func TestRecordRentalDeactivatesAtQuota(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 3001)

	task := &models.HuntTask{UserID: user.ID, Name: "pair", IsActive: true, AutoRent: true, MaxServers: 2}
	if err := st.Tasks.Create(task); err != nil {
		t.Fatalf("create: %v", err)
	}

	met, err := st.Tasks.RecordRental(task)
	if err != nil {
		t.Fatalf("first rental: %v", err)
	}
	if met {
		t.Fatal("quota not met after one of two")
	}
	if !task.IsActive || task.ServersRented != 1 {
		t.Fatalf("state after first rental: %#v", task)
	}

	met, err = st.Tasks.RecordRental(task)
	if err != nil {
		t.Fatalf("second rental: %v", err)
	}
	if !met {
		t.Fatal("quota met after two of two")
	}
	if task.IsActive {
		t.Fatal("task should deactivate at quota")
	}

	active, err := st.Tasks.ActiveTasks()
	if err != nil {
		t.Fatalf("active tasks: %v", err)
	}
	for _, a := range active {
		if a.ID == task.ID {
			t.Fatal("deactivated task still listed active")
		}
	}
}

func TestRecordMatchCountsAndStamps(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 3002)

	task := &models.HuntTask{UserID: user.ID, Name: "counter", IsActive: true, MaxServers: 1}
	if err := st.Tasks.Create(task); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if err := st.Tasks.RecordMatch(task, now); err != nil {
		t.Fatalf("record match: %v", err)
	}
	if task.ServersFound != 1 || task.LastFoundAt == nil || !task.LastFoundAt.Equal(now) {
		t.Fatalf("match state: %#v", task)
	}
}

func TestTemplatesIncludeGlobal(t *testing.T) {
	st := newTestStore(t)
	user := newTestUser(t, st, 3003)
	other := newTestUser(t, st, 3004)

	global := &models.DockerTemplate{Name: "pytorch", Image: "pytorch/pytorch:latest"}
	mine := &models.DockerTemplate{UserID: &user.ID, Name: "custom", Image: "me/custom:1"}
	theirs := &models.DockerTemplate{UserID: &other.ID, Name: "private", Image: "them/private:1"}
	for _, tpl := range []*models.DockerTemplate{global, mine, theirs} {
		if err := st.Tasks.CreateTemplate(tpl); err != nil {
			t.Fatalf("seed template: %v", err)
		}
	}

	templates, err := st.Tasks.Templates(user.ID)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected own + global, got %d", len(templates))
	}
	for _, tpl := range templates {
		if tpl.Name == "private" {
			t.Fatal("another user's template leaked")
		}
	}
}
