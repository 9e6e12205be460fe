package proctor

import (
	"errors"
	"testing"

	"github.com/quizport/quizport-backend/internal/model"
)

func TestNegotiatorCookieProbeIsHardRequirement(t *testing.T) {
	n := NewNegotiator(nopLogger())

	_, err := n.Acquire(model.CapabilityReport{
		Cookies:  false,
		WakeLock: true,
	})
	if !errors.Is(err, ErrCookiesRequired) {
		t.Fatalf("err = %v, want ErrCookiesRequired", err)
	}
}

func TestNegotiatorOptionalCapabilitiesAreBestEffort(t *testing.T) {
	n := NewNegotiator(nopLogger())

	out, err := n.Acquire(model.CapabilityReport{
		Cookies:          true,
		StoragePersisted: false,
		WakeLock:         false,
		OrientationLock:  true,
	})
	if err != nil {
		t.Fatalf("optional capability failures must not block: %v", err)
	}
	if !out.Cookies || out.StoragePersisted || out.WakeLock || !out.OrientationLock {
		t.Fatalf("outcome = %+v, want granted set mirrored", out)
	}
}
