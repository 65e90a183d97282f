package serializer

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSnapshotBodyIntact(t *testing.T) {
	response := `HTTP/1.1 200 OK
Server: Test

This is the body`

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		panic(err)
	}

	_, err = Snapshot(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if fmt.Sprintf("%s", body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	res := &http.Response{
		StatusCode: 201,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("created")),
	}
	res.Header.Add("Test", "-ing")

	bts, err := Snapshot(res)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	// read twice, both copies must be complete
	for i := 0; i < 2; i++ {
		stored, err := BytesToResponse(bts, nil)
		if err != nil {
			t.Fatalf("Error creating response: %+v", err)
		}
		if stored.StatusCode != 201 {
			t.Fatalf("Status is %d", stored.StatusCode)
		}
		if stored.Header.Get("Test") != "-ing" {
			t.Fatalf("Test header wrong %+v", stored.Header)
		}
		if body, _ := io.ReadAll(stored.Body); string(body) != "created" {
			t.Fatalf("Body is %s", body)
		}
	}
	if body, _ := io.ReadAll(res.Body); string(body) != "created" {
		t.Fatalf("Original body is %s", body)
	}
}

func TestSnapshotWithoutBody(t *testing.T) {
	res := &http.Response{StatusCode: 204, Header: http.Header{}}
	bts, err := Snapshot(res)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := BytesToResponse(bts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stored.StatusCode != 204 {
		t.Fatalf("Status is %d", stored.StatusCode)
	}
}
