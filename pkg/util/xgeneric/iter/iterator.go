// Copyright 2023 CUE Labs AG
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Modifications copyright (C) 2025 Stowage Authors
//
// The file originates from oci[github.com/cue-labs/oci], and we keep the
// original copyright and license above.

// Package iter provides helpers over iterator sequences whose items carry
// an error.
package iter

import "iter"

// Seq defines the type of an iterator sequence returned from the iterator
// functions. In general, a non-nil error means that the item is the last
// in the sequence.
type Seq[T any] = iter.Seq2[T, error]

// All returns all items from the iterator sequence, stopping at the first
// error encountered.
func All[T any](it Seq[T]) ([]T, error) {
	xs := []T{}
	for x, err := range it {
		if err != nil {
			return xs, err
		}
		xs = append(xs, x)
	}
	return xs, nil
}

// SliceSeq returns an iterator that yields the items in the given slice.
func SliceSeq[T any](xs []T) Seq[T] {
	return func(yield func(T, error) bool) {
		for _, x := range xs {
			if !yield(x, nil) {
				return
			}
		}
	}
}

// ErrorSeq returns an iterator that has no items and always returns the given error.
func ErrorSeq[T any](err error) Seq[T] {
	return func(yield func(T, error) bool) {
		yield(*new(T), err)
	}
}

// PrependSeq re-attaches a previously consumed head item in front of the
// remainder of the sequence.
func PrependSeq[T any](head T, rest Seq[T]) Seq[T] {
	return func(yield func(T, error) bool) {
		if !yield(head, nil) {
			return
		}
		for x, err := range rest {
			if !yield(x, err) {
				return
			}
		}
	}
}

// Peek pulls the first item from the sequence and returns it together with
// a sequence that replays the whole input, head included. The bool result
// reports whether the sequence yielded any item at all.
func Peek[T any](it Seq[T]) (T, Seq[T], bool, error) {
	next, stop := iter.Pull2(it)
	head, err, ok := next()
	if !ok {
		stop()
		var zero T
		return zero, SliceSeq([]T(nil)), false, nil
	}
	if err != nil {
		stop()
		var zero T
		return zero, ErrorSeq[T](err), false, err
	}
	rest := func(yield func(T, error) bool) {
		defer stop()
		if !yield(head, nil) {
			return
		}
		for {
			x, err, ok := next()
			if !ok {
				return
			}
			if !yield(x, err) {
				return
			}
		}
	}
	return head, rest, true, nil
}
