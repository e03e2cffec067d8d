package messaging

import (
	"strings"
	"testing"
)

func TestSubjects_FollowNamingPattern(t *testing.T) {
	subjects := []string{
		SubjectDocumentChanges,
		SubjectDocumentReplays,
	}

	for _, s := range subjects {
		parts := strings.Split(s, ".")
		if len(parts) != 3 {
			t.Errorf("subject %q does not follow {domain}.{resource}.{action}", s)
		}
		if parts[0] != "dossier" {
			t.Errorf("subject %q is outside the dossier domain", s)
		}
	}
}

func TestSubjects_Distinct(t *testing.T) {
	if SubjectDocumentChanges == SubjectDocumentReplays {
		t.Error("change and replay subjects must differ")
	}
}
