package e2e

import (
	"eventmaster/domain"
	"eventmaster/reconcile"
	"testing"

	"github.com/stretchr/testify/suite"
)

type testTwoDevicesSuite struct {
	BaseCLISuite
}

func TestTwoDevicesSuite(t *testing.T) {
	suite.Run(t, &testTwoDevicesSuite{})
}

func (s *testTwoDevicesSuite) TestEventsFollowTheUserAcrossDevices() {
	laptop := s.Device("laptop")
	phone := s.Device("phone")

	var login struct {
		Token string `json:"token"`
	}

	// --- STEP 1: SIGN IN ON BOTH DEVICES ---
	s.Run("Step 1: Sign in with the same email", func() {
		_, err := s.Exec(laptop, &login, "session", "login", "ana@example.com")
		s.Require().NoError(err)
		s.Require().NotEmpty(login.Token)
		_, err = s.Exec(phone, nil, "session", "login", "ANA@example.com")
		s.Require().NoError(err)
	})

	// --- STEP 2: CREATE OFFLINE, THEN SYNC ---
	s.Run("Step 2: Laptop creates an event and pushes it", func() {
		var event domain.Event
		_, err := s.Exec(laptop, &event, "event", "create",
			"--nombre", "Boda de Ana", "--tipo", "Boda", "--fecha", "2099-05-01", "--hora", "18:00")
		s.Require().NoError(err)
		s.Require().Equal(int64(1), event.ID)

		var report reconcile.Report
		_, err = s.Exec(laptop, &report, "sync", "run")
		s.Require().NoError(err)
		s.Require().Equal(1, report.Pushed)
	})

	// --- STEP 3: PULL ON THE OTHER DEVICE ---
	s.Run("Step 3: Phone pulls the event", func() {
		var report reconcile.Report
		_, err := s.Exec(phone, &report, "sync", "run")
		s.Require().NoError(err)
		s.Require().Equal(1, report.Pulled)

		var events []domain.Event
		_, err = s.Exec(phone, &events, "event", "list")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Require().Equal("Boda de Ana", events[0].Nombre)
	})

	// --- STEP 4: EDITS TRAVEL BACK ---
	s.Run("Step 4: Phone edits, laptop receives the edit", func() {
		_, err := s.Exec(phone, nil, "event", "update", "1", "--ubicacion", "Cuenca")
		s.Require().NoError(err)
		_, err = s.Exec(phone, nil, "sync", "run")
		s.Require().NoError(err)
		_, err = s.Exec(laptop, nil, "sync", "run")
		s.Require().NoError(err)

		var event domain.Event
		_, err = s.Exec(laptop, &event, "event", "show", "1")
		s.Require().NoError(err)
		s.Require().Equal("Cuenca", event.Ubicacion)
	})

	// --- STEP 5: DELETES PROPAGATE ---
	s.Run("Step 5: Laptop deletes, phone no longer shows the event", func() {
		_, err := s.Exec(laptop, nil, "event", "delete", "1")
		s.Require().NoError(err)
		_, err = s.Exec(laptop, nil, "sync", "run")
		s.Require().NoError(err)
		_, err = s.Exec(phone, nil, "sync", "run")
		s.Require().NoError(err)

		resp, err := s.Exec(phone, nil, "event", "show", "1")
		s.Require().Error(err)
		s.Require().Equal("E_NOT_FOUND", resp.Error.Code)
	})

	// --- STEP 6: ANONYMOUS DATA STAYS LOCAL TO ITS NAMESPACE ---
	s.Run("Step 6: Signing out shows the anonymous agenda", func() {
		_, err := s.Exec(phone, nil, "session", "logout")
		s.Require().NoError(err)

		var events []domain.Event
		_, err = s.Exec(phone, &events, "event", "list")
		s.Require().NoError(err)
		s.Require().Empty(events)
	})
}
