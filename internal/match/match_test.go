package match

import (
	"github.com/0xADE/ade-progd/internal/catalog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Score", func() {
	DescribeTable("tiers",
		func(name, query string, lo, hi int) {
			s := Score(name, query)
			Expect(s).To(BeNumerically(">=", lo))
			Expect(s).To(BeNumerically("<=", hi))
		},
		Entry("exact, case-insensitive", "Notepad", "notepad", ScoreExact, ScoreExact),
		Entry("prefix", "Notepad", "note", ScorePrefix, ScorePrefix+maxCloseness),
		Entry("word prefix", "Visual Studio Code", "code", ScoreWordPrefix, ScoreWordPrefix+maxCloseness),
		Entry("word prefix after dash", "gnome-terminal", "term", ScoreWordPrefix, ScoreWordPrefix+maxCloseness),
		Entry("substring", "Notepad", "tepa", ScoreSubstring, ScoreSubstring+maxCloseness),
		Entry("subsequence", "Notepad", "ntpd", ScoreSubseq, ScoreSubseq+maxSubseqGain),
		Entry("no match", "Notepad", "xyz", 0, 0),
		Entry("empty query", "Notepad", "", 0, 0),
		Entry("blank query", "Notepad", "   ", 0, 0),
		Entry("empty name", "", "note", 0, 0),
		Entry("full-width characters", "Ｆｉｒｅｆｏｘ", "firefox", ScoreExact, ScoreExact),
	)

	It("should rank an exact match above a subsequence match", func() {
		names := []string{"nvim", "neovim", "new-vim-session", "nvim-qt"}
		for _, other := range names[1:] {
			Expect(Score("nvim", "nvim")).To(BeNumerically(">", Score(other, "nvim")), other)
		}
	})

	It("should order exact > prefix > word prefix > substring > subsequence", func() {
		q := "code"
		exact := Score("Code", q)
		prefix := Score("Codeblocks", q)
		word := Score("VS Code Insiders", q)
		sub := Score("Xcoder", q)
		subseq := Score("Color Designer", q)
		Expect(exact).To(BeNumerically(">", prefix))
		Expect(prefix).To(BeNumerically(">", word))
		Expect(word).To(BeNumerically(">", sub))
		Expect(sub).To(BeNumerically(">", subseq))
		Expect(subseq).To(BeNumerically(">", 0))
	})

	It("should prefer shorter names within a tier", func() {
		Expect(Score("Notepad", "note")).To(BeNumerically(">", Score("Notepad Plus Plus", "note")))
	})

	It("should be deterministic", func() {
		Expect(Score("Firefox Web Browser", "fwb")).To(Equal(Score("Firefox Web Browser", "fwb")))
	})
})

var _ = Describe("Matcher", func() {
	var m *Matcher

	BeforeEach(func() {
		var err error
		m, err = NewMatcher(16)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should agree with Score", func() {
		q := m.Prepare("note")
		Expect(m.ScoreName("Notepad", q)).To(Equal(Score("Notepad", "note")))
		// second call hits the cache
		Expect(m.ScoreName("Notepad", q)).To(Equal(Score("Notepad", "note")))
	})

	It("should score aliases at half weight", func() {
		p := catalog.NewPackaged("", "org.gnome.gedit.desktop", "gedit")
		p.Keywords = []string{"text"}
		Expect(m.ScoreProgram(p, m.Prepare("text"))).To(Equal(ScoreExact / 2))
	})

	It("should prefer the display name over an alias", func() {
		p := catalog.NewPackaged("", "x.desktop", "Text Editor")
		p.Keywords = []string{"text"}
		Expect(m.ScoreProgram(p, m.Prepare("text"))).To(BeNumerically(">=", ScorePrefix))
	})

	It("should match native entries by file name alias", func() {
		n := catalog.NewNative("/usr/bin/gimp-2.10", nil)
		n.Name = "GNU Image Manipulation Program"
		Expect(m.ScoreProgram(n, m.Prepare("gimp"))).To(BeNumerically(">", 0))
	})

	It("should score nothing for an empty query", func() {
		Expect(m.ScoreProgram(catalog.NewNative("/bin/ls", nil), m.Prepare(""))).To(Equal(0))
	})

	It("should fall back to the default cache size", func() {
		m, err := NewMatcher(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).NotTo(BeNil())
	})
})
