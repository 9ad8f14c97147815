package dummydb

import (
	"sync"

	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
)

type (
	DB struct {
		binding    *bindingTable
		job        *jobTable
		instructor *instructorTable
	}

	bindingTable struct {
		sync.RWMutex
		table map[int]*binding.Binding
	}

	jobTable struct {
		sync.RWMutex
		table map[string]*queue.Job
	}

	instructorTable struct {
		sync.RWMutex
		table map[int]*binding.Instructor
		// recipient eligibility, keyed by instructor id
		organizers map[int]bool
	}
)

func Open() (*DB, error) {
	db := &DB{
		binding: &bindingTable{table: make(map[int]*binding.Binding)},
		job:     &jobTable{table: make(map[string]*queue.Job)},
		instructor: &instructorTable{
			table:      make(map[int]*binding.Instructor),
			organizers: make(map[int]bool),
		},
	}
	return db, nil
}
