/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package concurrent_test

import (
	"sync"
	"time"

	"github.com/botobag/relay/concurrent"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func recordTask(log *[]int, mutex *sync.Mutex, n int) concurrent.Task {
	return concurrent.TaskFunc(func() (interface{}, error) {
		mutex.Lock()
		*log = append(*log, n)
		mutex.Unlock()
		return n, nil
	})
}

var _ = Describe("TaskQueueExecutor", func() {
	var (
		executor *concurrent.TaskQueueExecutor
		log      []int
		mutex    sync.Mutex
	)

	BeforeEach(func() {
		executor = concurrent.NewTaskQueueExecutor()
		log = nil
	})

	It("does not run tasks until drained", func() {
		_, err := executor.Submit(recordTask(&log, &mutex, 1))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(executor.Pending()).Should(Equal(1))
		Expect(log).Should(BeEmpty())

		Expect(executor.RunNext()).Should(BeTrue())
		Expect(log).Should(Equal([]int{1}))
		Expect(executor.RunNext()).Should(BeFalse())
	})

	It("runs tasks in submission order including tasks submitted while running", func() {
		_, err := executor.Submit(concurrent.TaskFunc(func() (interface{}, error) {
			log = append(log, 1)
			_, err := executor.Submit(recordTask(&log, &mutex, 3))
			return nil, err
		}))
		Expect(err).ShouldNot(HaveOccurred())
		_, err = executor.Submit(recordTask(&log, &mutex, 2))
		Expect(err).ShouldNot(HaveOccurred())

		Expect(executor.RunAll()).Should(Equal(3))
		Expect(log).Should(Equal([]int{1, 2, 3}))
	})

	It("hands the result to the task handle", func() {
		handle, err := executor.Submit(recordTask(&log, &mutex, 7))
		Expect(err).ShouldNot(HaveOccurred())

		_, err = handle.AwaitResult(time.Millisecond)
		Expect(err).Should(Equal(concurrent.ErrAwaitTaskResultTimeout))

		executor.RunAll()
		Expect(handle.AwaitResult(0)).Should(Equal(7))
	})

	It("cancels a queued task", func() {
		first, err := executor.Submit(recordTask(&log, &mutex, 1))
		Expect(err).ShouldNot(HaveOccurred())
		second, err := executor.Submit(recordTask(&log, &mutex, 2))
		Expect(err).ShouldNot(HaveOccurred())

		Expect(first.Cancel()).Should(Succeed())
		_, err = first.AwaitResult(0)
		Expect(err).Should(Equal(concurrent.ErrTaskCancelled))

		executor.RunAll()
		Expect(log).Should(Equal([]int{2}))
		Expect(second.Cancel()).Should(Equal(concurrent.ErrTaskNotCancellable))
	})

	It("rejects new tasks after shutdown and terminates once drained", func() {
		_, err := executor.Submit(recordTask(&log, &mutex, 1))
		Expect(err).ShouldNot(HaveOccurred())

		terminated, err := executor.Shutdown()
		Expect(err).ShouldNot(HaveOccurred())
		Consistently(terminated).ShouldNot(Receive())

		_, err = executor.Submit(recordTask(&log, &mutex, 2))
		Expect(err).Should(Equal(concurrent.ErrExecutorShutdown))

		executor.RunAll()
		Eventually(terminated).Should(Receive(BeTrue()))
		Expect(log).Should(Equal([]int{1}))
	})
})

var _ = Describe("SerialExecutor", func() {
	It("runs tasks one at a time in submission order", func() {
		executor := concurrent.NewSerialExecutor()

		var (
			log     []int
			mutex   sync.Mutex
			handles []concurrent.TaskHandle
		)
		for i := 0; i < 100; i++ {
			handle, err := executor.Submit(recordTask(&log, &mutex, i))
			Expect(err).ShouldNot(HaveOccurred())
			handles = append(handles, handle)
		}

		Expect(handles[99].AwaitResult(time.Second)).Should(Equal(99))

		terminated, err := executor.Shutdown()
		Expect(err).ShouldNot(HaveOccurred())
		Eventually(terminated).Should(Receive(BeTrue()))

		mutex.Lock()
		defer mutex.Unlock()
		Expect(log).Should(HaveLen(100))
		for i, n := range log {
			Expect(n).Should(Equal(i))
		}
	})
})
