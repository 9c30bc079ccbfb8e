package replay

import (
	"errors"
	"io"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/trace"
)

func replayAll(setBits, numWays, blockBits int, accs []trace.Access) Stats {
	r := NewReplayer(cache.New(setBits, numWays, blockBits))
	for _, acc := range accs {
		r.Step(acc)
	}

	return r.Stats()
}

var _ = Describe("Replayer", func() {
	var (
		mockCtrl *gomock.Controller
		src      *MockAccessSource
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		src = NewMockAccessSource(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should replay a source in order and return the stats", func() {
		gomock.InOrder(
			src.EXPECT().Next().
				Return(trace.Access{Op: trace.OpStore, Addr: 0x0, Size: 1}, nil),
			src.EXPECT().Next().
				Return(trace.Access{Op: trace.OpLoad, Addr: 0x0, Size: 1}, nil),
			src.EXPECT().Next().Return(trace.Access{}, io.EOF),
		)

		r := NewReplayer(cache.New(0, 2, 3))
		stats, err := r.Run(src)

		Expect(err).ToNot(HaveOccurred())
		Expect(stats).To(Equal(Stats{
			Hits:       1,
			Misses:     1,
			DirtyBytes: 8,
		}))
	})

	It("should yield all-zero stats for an empty source", func() {
		src.EXPECT().Next().Return(trace.Access{}, io.EOF)

		r := NewReplayer(cache.New(4, 2, 4))
		stats, err := r.Run(src)

		Expect(err).ToNot(HaveOccurred())
		Expect(stats).To(Equal(Stats{}))
	})

	It("should surface source errors with the stats so far", func() {
		readErr := errors.New("truncated trace")
		gomock.InOrder(
			src.EXPECT().Next().
				Return(trace.Access{Op: trace.OpLoad, Addr: 0x10, Size: 1}, nil),
			src.EXPECT().Next().Return(trace.Access{}, readErr),
		)

		r := NewReplayer(cache.New(4, 2, 4))
		stats, err := r.Run(src)

		Expect(err).To(MatchError(readErr))
		Expect(stats.Misses).To(Equal(uint64(1)))
	})

	It("should count conflict evictions in a single-line cache", func() {
		stats := replayAll(0, 1, 0, []trace.Access{
			{Op: trace.OpLoad, Addr: 0x0, Size: 1},
			{Op: trace.OpLoad, Addr: 0x8, Size: 1},
			{Op: trace.OpLoad, Addr: 0x0, Size: 1},
		})

		Expect(stats.Hits).To(Equal(uint64(0)))
		Expect(stats.Misses).To(Equal(uint64(3)))
		Expect(stats.Evictions).To(Equal(uint64(2)))
		Expect(stats.DirtyBytes).To(Equal(uint64(0)))
	})

	It("should count dirty bytes for a store followed by a load", func() {
		stats := replayAll(0, 2, 3, []trace.Access{
			{Op: trace.OpStore, Addr: 0x0, Size: 1},
			{Op: trace.OpLoad, Addr: 0x0, Size: 1},
		})

		Expect(stats).To(Equal(Stats{
			Hits:       1,
			Misses:     1,
			DirtyBytes: 8,
		}))
	})

	It("should move evicted dirty bytes into dirty evictions", func() {
		stats := replayAll(0, 1, 3, []trace.Access{
			{Op: trace.OpStore, Addr: 0x0, Size: 1},
			{Op: trace.OpStore, Addr: 0x8, Size: 1},
		})

		Expect(stats).To(Equal(Stats{
			Misses:         2,
			Evictions:      1,
			DirtyBytes:     8,
			DirtyEvictions: 8,
		}))
	})

	It("should not double-count repeated stores to a resident block", func() {
		stats := replayAll(0, 1, 3, []trace.Access{
			{Op: trace.OpStore, Addr: 0x0, Size: 1},
			{Op: trace.OpStore, Addr: 0x0, Size: 1},
			{Op: trace.OpStore, Addr: 0x4, Size: 1},
		})

		Expect(stats.Hits).To(Equal(uint64(2)))
		Expect(stats.DirtyBytes).To(Equal(uint64(8)))
	})

	It("should notify listeners with sequence numbers and outcomes", func() {
		r := NewReplayer(cache.New(0, 1, 3))
		listener := &capturingListener{}
		r.AddListener(listener)

		r.Step(trace.Access{Op: trace.OpStore, Addr: 0x0, Size: 1})
		r.Step(trace.Access{Op: trace.OpLoad, Addr: 0x8, Size: 1})

		Expect(listener.seqs).To(Equal([]uint64{0, 1}))
		Expect(listener.results[0].Miss).To(BeTrue())
		Expect(listener.results[0].BecameDirty).To(BeTrue())
		Expect(listener.results[1].Eviction).To(BeTrue())
		Expect(listener.results[1].EvictedDirty).To(BeTrue())
	})
})

var _ = Describe("Replayer properties", func() {
	randomAccesses := func(n int, seed int64) []trace.Access {
		rng := rand.New(rand.NewSource(seed))
		accs := make([]trace.Access, n)
		for i := range accs {
			op := trace.OpLoad
			if rng.Intn(2) == 1 {
				op = trace.OpStore
			}

			accs[i] = trace.Access{
				Op:   op,
				Addr: uint64(rng.Intn(1 << 12)),
				Size: 1,
			}
		}

		return accs
	}

	It("should split every access into exactly one hit or miss", func() {
		accs := randomAccesses(5000, 1)
		stats := replayAll(2, 2, 3, accs)

		Expect(stats.Hits + stats.Misses).To(Equal(uint64(len(accs))))
		Expect(stats.Evictions).To(BeNumerically("<=", stats.Misses))
	})

	It("should keep dirty bytes equal to the dirty block total", func() {
		c := cache.New(2, 2, 3)
		r := NewReplayer(c)

		for _, acc := range randomAccesses(5000, 2) {
			r.Step(acc)

			want := uint64(c.DirtyBlockCount()) * c.BlockSize
			Expect(r.Stats().DirtyBytes).To(Equal(want))
		}
	})

	It("should never evict when the working set fits", func() {
		// 4 sets of 2 ways; only 2 distinct blocks per set are touched.
		accs := []trace.Access{}
		for i := 0; i < 100; i++ {
			accs = append(accs,
				trace.Access{Op: trace.OpLoad, Addr: uint64(i%8) * 8, Size: 1})
		}

		stats := replayAll(2, 2, 3, accs)
		Expect(stats.Evictions).To(Equal(uint64(0)))
	})

	It("should be deterministic across identically built caches", func() {
		accs := randomAccesses(5000, 3)

		first := replayAll(3, 4, 4, accs)
		second := replayAll(3, 4, 4, accs)

		Expect(first).To(Equal(second))
	})
})

type capturingListener struct {
	seqs    []uint64
	results []cache.Result
}

func (l *capturingListener) NotifyAccess(
	seq uint64,
	acc trace.Access,
	res cache.Result,
) {
	l.seqs = append(l.seqs, seq)
	l.results = append(l.results, res)
}
