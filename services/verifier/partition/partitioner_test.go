// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package partition

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func makeTasks(typ datatypes.TaskType, n int) []datatypes.VerificationTask {
	tasks := make([]datatypes.VerificationTask, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, datatypes.VerificationTask{
			ID:   fmt.Sprintf("%s-task-%02d", typ, i),
			Type: typ,
		})
	}
	return tasks
}

func TestPartition_Empty(t *testing.T) {
	p := New()
	if got := p.Partition(nil); got != nil {
		t.Fatalf("Partition(nil) = %v, want nil", got)
	}
}

func TestPartition_ChunkSizes(t *testing.T) {
	p := New(WithMaxBatchSize(4))
	tasks := makeTasks(datatypes.TaskTypeRuleVerification, 10)

	batches := p.Partition(tasks)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}

	wantSizes := []int{4, 4, 2}
	seen := make(map[string]int)
	for i, b := range batches {
		if len(b.Tasks) != wantSizes[i] {
			t.Errorf("batch %d has %d tasks, want %d", i, len(b.Tasks), wantSizes[i])
		}
		if b.Type != datatypes.TaskTypeRuleVerification {
			t.Errorf("batch %d type = %q", i, b.Type)
		}
		for _, task := range b.Tasks {
			seen[task.ID]++
		}
	}
	if len(seen) != 10 {
		t.Fatalf("batches cover %d distinct tasks, want 10", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("task %s appears %d times, want exactly once", id, count)
		}
	}
}

func TestPartition_BatchIDs(t *testing.T) {
	p := New(WithMaxBatchSize(4))
	batches := p.Partition(makeTasks(datatypes.TaskTypeRuleVerification, 10))

	want := []string{
		"rule_verification-0",
		"rule_verification-1",
		"rule_verification-2",
	}
	for i, b := range batches {
		if b.ID != want[i] {
			t.Errorf("batch %d id = %q, want %q", i, b.ID, want[i])
		}
	}
}

func TestPartition_GroupsByType(t *testing.T) {
	p := New(WithMaxBatchSize(10))
	tasks := append(
		makeTasks(datatypes.TaskTypeRuleVerification, 3),
		makeTasks(datatypes.TaskTypeConsistencyCheck, 2)...,
	)

	batches := p.Partition(tasks)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	for _, b := range batches {
		for _, task := range b.Tasks {
			if task.Type != b.Type {
				t.Errorf("batch %s contains task of type %q", b.ID, task.Type)
			}
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	p := New(WithMaxBatchSize(3))
	tasks := append(
		makeTasks(datatypes.TaskTypeRuleVerification, 7),
		makeTasks(datatypes.TaskTypeConsistencyCheck, 4)...,
	)

	first := p.Partition(tasks)

	// Reverse the input; batches must come out identical.
	reversed := make([]datatypes.VerificationTask, len(tasks))
	for i, task := range tasks {
		reversed[len(tasks)-1-i] = task
	}
	second := p.Partition(reversed)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("partitioning is order-sensitive:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
