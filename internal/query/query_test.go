package query

import (
	"fmt"
	"sync"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/match"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ids(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

var _ = Describe("Engine", func() {
	var (
		store   *catalog.Store
		matcher *match.Matcher
		engine  *Engine
	)

	BeforeEach(func() {
		var err error
		store = catalog.NewStore()
		matcher, err = match.NewMatcher(0)
		Expect(err).NotTo(HaveOccurred())
		engine = NewEngine(store, matcher, Options{Workers: 4})

		store.Replace(
			[]*catalog.Native{{Name: "Notepad", Path: "/usr/bin/notepad", UniqueIdentifier: "N1", Enabled: true}},
			[]*catalog.Packaged{{Title: "Notepad", PackageLocation: "/opt/notepad", UniqueIdentifier: "P1", Enabled: true}},
		)
	})

	It("should return both sources for identical names", func() {
		results := engine.Query("note")
		Expect(ids(results)).To(Equal([]string{"N1", "P1"}))
		for _, r := range results {
			Expect(r.Score).To(BeNumerically(">", 0))
		}
		Expect(results[0].Kind).To(Equal(catalog.KindNative))
		Expect(results[0].SubTitle).To(Equal("/usr/bin/notepad"))
		Expect(results[1].Kind).To(Equal(catalog.KindPackaged))
	})

	It("should drop a disabled entry", func() {
		_, ok := store.MutateEnabled("N1", false)
		Expect(ok).To(BeTrue())

		Expect(ids(engine.Query("note"))).To(Equal([]string{"P1"}))
	})

	It("should never return disabled entries even for exact matches", func() {
		store.MutateEnabled("N1", false)
		store.MutateEnabled("P1", false)
		Expect(engine.Query("Notepad")).To(BeEmpty())
	})

	It("should return nothing for an empty query", func() {
		Expect(engine.Query("")).To(BeEmpty())
		Expect(engine.Query("   ")).To(BeEmpty())
	})

	It("should drop non-matching entries", func() {
		Expect(engine.Query("xyz")).To(BeEmpty())
	})

	It("should rank better matches first", func() {
		store.Replace([]*catalog.Native{
			catalog.NewNative("/usr/bin/gvim", nil),
			catalog.NewNative("/usr/bin/vim", nil),
			catalog.NewNative("/usr/bin/vimdiff", nil),
			catalog.NewNative("/usr/bin/view-image", nil),
		}, nil)

		var titles []string
		for _, r := range engine.Query("vim") {
			titles = append(titles, r.Title)
		}
		Expect(titles).To(Equal([]string{"vim", "vimdiff", "gvim", "view-image"}))
	})

	It("should truncate to the list limit", func() {
		var native []*catalog.Native
		for i := 0; i < 300; i++ {
			native = append(native, catalog.NewNative(fmt.Sprintf("/usr/bin/tool%03d", i), nil))
		}
		store.Replace(native, nil)

		limited := NewEngine(store, matcher, Options{Workers: 3, Limit: 10})
		results := limited.Query("tool")
		Expect(results).To(HaveLen(10))
		Expect(results[0].Title).To(Equal("tool000"))

		Expect(engine.Query("tool")).To(HaveLen(300))
	})

	It("should be deterministic across worker counts", func() {
		var native []*catalog.Native
		for i := 0; i < 500; i++ {
			native = append(native, catalog.NewNative(fmt.Sprintf("/usr/bin/app-%d", i), nil))
		}
		store.Replace(native, nil)

		single := NewEngine(store, matcher, Options{Workers: 1})
		Expect(ids(engine.Query("app"))).To(Equal(ids(single.Query("app"))))
	})

	It("should serve queries while the catalog is replaced", func() {
		var wg sync.WaitGroup
		stop := make(chan struct{})

		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("/usr/bin/note%d", i)
				store.Replace([]*catalog.Native{catalog.NewNative(name, nil)}, nil)
			}
			close(stop)
		}()

		for {
			select {
			case <-stop:
				wg.Wait()
				return
			default:
				Expect(len(engine.Query("note"))).To(BeNumerically("<=", 2))
			}
		}
	})
})

var _ = Describe("chunk", func() {
	It("should cover every program exactly once", func() {
		programs := make([]catalog.Program, 1000)
		for i := range programs {
			programs[i] = catalog.NewNative(fmt.Sprintf("/bin/p%d", i), nil)
		}

		chunks := chunk(programs, 4)
		Expect(chunks).To(HaveLen(4))
		total := 0
		for _, c := range chunks {
			total += len(c)
		}
		Expect(total).To(Equal(1000))
	})

	It("should keep small inputs in one chunk", func() {
		programs := make([]catalog.Program, 10)
		for i := range programs {
			programs[i] = catalog.NewNative(fmt.Sprintf("/bin/p%d", i), nil)
		}
		Expect(chunk(programs, 8)).To(HaveLen(1))
		Expect(chunk(nil, 8)).To(BeEmpty())
	})
})
