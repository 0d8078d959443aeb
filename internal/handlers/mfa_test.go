package handlers_test

import (
	"net/http"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

func TestIssueMfaChallenge(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/mfa/challenges",
		map[string]interface{}{"action": "incident-reopen"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var challenge database.MfaChallenge
	decode(t, w, &challenge)
	if challenge.Status != database.MfaStatusIssued {
		t.Errorf("status = %s", challenge.Status)
	}
	if challenge.UserEmail != "anonymous@dispatch.local" {
		t.Errorf("user = %s", challenge.UserEmail)
	}
	if len(f.seed.Mfa.Pushes) != 1 {
		t.Errorf("pushes = %d", len(f.seed.Mfa.Pushes))
	}
}

func TestIssueMfaChallenge_RequiresAction(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/mfa/challenges",
		map[string]interface{}{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestResolveMfaChallenge(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/mfa/challenges",
		map[string]interface{}{"action": "incident-reopen"})
	if w.Code != http.StatusCreated {
		t.Fatalf("issue status = %d", w.Code)
	}
	var challenge database.MfaChallenge
	decode(t, w, &challenge)

	w = f.do(t, http.MethodPost, "/api/default/mfa/challenges/"+challenge.UUID+"/resolve",
		map[string]interface{}{"action": "incident-reopen", "approved": true})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", w.Code, w.Body.String())
	}
	var resolved database.MfaChallenge
	decode(t, w, &resolved)
	if resolved.Status != database.MfaStatusVerified {
		t.Errorf("status = %s", resolved.Status)
	}

	// Settled challenges conflict on a second resolve.
	w = f.do(t, http.MethodPost, "/api/default/mfa/challenges/"+challenge.UUID+"/resolve",
		map[string]interface{}{"action": "incident-reopen", "approved": true})
	if w.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d", w.Code)
	}
}

func TestResolveMfaChallenge_WrongAction(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/mfa/challenges",
		map[string]interface{}{"action": "incident-reopen"})
	if w.Code != http.StatusCreated {
		t.Fatalf("issue status = %d", w.Code)
	}
	var challenge database.MfaChallenge
	decode(t, w, &challenge)

	w = f.do(t, http.MethodPost, "/api/default/mfa/challenges/"+challenge.UUID+"/resolve",
		map[string]interface{}{"action": "case-close", "approved": true})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestResolveMfaChallenge_Unknown(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/mfa/challenges/no-such-uuid/resolve",
		map[string]interface{}{"action": "incident-reopen", "approved": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}
