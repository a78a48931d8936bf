package handlers

import "testing"

func TestPasswordHashing(t *testing.T) {
	password := "s3cret-pass"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" || hash == password {
		t.Fatal("expected a non-empty hash distinct from the password")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}
