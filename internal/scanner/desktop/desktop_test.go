package desktop

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

const calculator = `[Desktop Entry]
Type=Application
Name=Calculator
Name[de]=Rechner
GenericName=Scientific Calculator
Comment=Perform calculations
Keywords=math;arithmetic;sum\;total;
Categories=Utility;Calculator;
Exec=/usr/bin/flatpak run --branch=stable org.gnome.Calculator %U
Terminal=false
X-Flatpak=org.gnome.Calculator

[Desktop Action new-window]
Name=New Window
Exec=other
`

func writeFile(path, content string) {
	gomega.Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(gomega.Succeed())
	gomega.Expect(os.WriteFile(path, []byte(content), 0644)).To(gomega.Succeed())
}

var _ = ginkgo.Describe("ParseDesktopFile", func() {
	var tmpDir string

	ginkgo.BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-desktop-test-*")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	ginkgo.It("should read every key of the main section in one pass", func() {
		path := filepath.Join(tmpDir, "org.gnome.Calculator.desktop")
		writeFile(path, calculator)

		entry, err := ParseDesktopFile(path)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(entry.Name).To(gomega.Equal("Calculator"))
		gomega.Expect(entry.Names).To(gomega.HaveKeyWithValue("de", "Rechner"))
		gomega.Expect(entry.GenericName).To(gomega.Equal("Scientific Calculator"))
		gomega.Expect(entry.Comment).To(gomega.Equal("Perform calculations"))
		gomega.Expect(entry.Keywords).To(gomega.Equal([]string{"math", "arithmetic", "sum;total"}))
		gomega.Expect(entry.Categories).To(gomega.Equal([]string{"Utility", "Calculator"}))
		gomega.Expect(entry.Exec).To(gomega.Equal("/usr/bin/flatpak run --branch=stable org.gnome.Calculator %U"))
		gomega.Expect(entry.FlatpakID).To(gomega.Equal("org.gnome.Calculator"))
		gomega.Expect(entry.Terminal).To(gomega.BeFalse())
		gomega.Expect(entry.Visible()).To(gomega.BeTrue())
	})

	ginkgo.It("should report hidden and non-application entries as invisible", func() {
		hidden := filepath.Join(tmpDir, "hidden.desktop")
		writeFile(hidden, "[Desktop Entry]\nName=Hidden\nExec=x\nNoDisplay=true\n")
		link := filepath.Join(tmpDir, "link.desktop")
		writeFile(link, "[Desktop Entry]\nType=Link\nName=Site\nURL=https://example.org\n")

		entry, err := ParseDesktopFile(hidden)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(entry.Visible()).To(gomega.BeFalse())

		entry, err = ParseDesktopFile(link)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(entry.Visible()).To(gomega.BeFalse())
	})

	ginkgo.It("should fall back to the file name when Name is missing", func() {
		path := filepath.Join(tmpDir, "tool.desktop")
		writeFile(path, "[Desktop Entry]\nExec=tool\n")

		entry, err := ParseDesktopFile(path)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(entry.Name).To(gomega.Equal("tool"))
	})

	ginkgo.It("should reject files without name and exec", func() {
		path := filepath.Join(tmpDir, "empty.desktop")
		writeFile(path, "[Desktop Entry]\nComment=nothing\n")

		_, err := ParseDesktopFile(path)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("Exec handling", func() {
	expand := func(exec, name, file string) string {
		out, err := ExpandExecCommand(exec, name, file)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		return out
	}

	ginkgo.It("should strip field codes and unescape percent signs", func() {
		gomega.Expect(expand("firefox %u --new %%x", "", "")).To(gomega.Equal("firefox  --new %x"))
	})

	ginkgo.It("should expand name and location codes", func() {
		gomega.Expect(expand("app --class %c --desktop %k %F", "App", "/a/app.desktop")).
			To(gomega.Equal("app --class App --desktop /a/app.desktop"))
	})

	ginkgo.It("should quote titles with spaces", func() {
		gomega.Expect(expand("code --name %c %F", "Visual Studio Code", "")).
			To(gomega.Equal("code --name 'Visual Studio Code'"))
	})

	ginkgo.It("should not treat a percent sign in the title as a field code", func() {
		gomega.Expect(expand("x --title %c", "100%s Tool", "")).
			To(gomega.Equal("x --title '100%s Tool'"))
	})

	ginkgo.It("should drop name codes of entries without a title", func() {
		gomega.Expect(expand("x %c %u", "", "")).To(gomega.Equal("x"))
	})
})

var _ = ginkgo.Describe("Scanner", func() {
	var (
		tmpDir  string
		scanner *Scanner
	)

	ginkgo.BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-desktop-scan-*")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		scanner, err = NewScanner(0)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	scan := func(dirs ...string) []*DesktopEntry {
		ch := make(chan *DesktopEntry, 8)
		errCh := make(chan error, 1)
		go func() { errCh <- scanner.Scan(context.Background(), dirs, ch) }()

		var entries []*DesktopEntry
		for e := range ch {
			entries = append(entries, e)
		}
		gomega.Expect(<-errCh).NotTo(gomega.HaveOccurred())
		return entries
	}

	ginkgo.It("should derive desktop file ids from the relative path", func() {
		writeFile(filepath.Join(tmpDir, "apps", "kde", "konsole.desktop"), "[Desktop Entry]\nName=Konsole\nExec=konsole\n")
		writeFile(filepath.Join(tmpDir, "apps", "notes.txt"), "not a desktop file")

		entries := scan(filepath.Join(tmpDir, "apps"))
		gomega.Expect(entries).To(gomega.HaveLen(1))
		gomega.Expect(entries[0].ID).To(gomega.Equal("kde-konsole.desktop"))
	})

	ginkgo.It("should keep directory order and skip missing directories", func() {
		user := filepath.Join(tmpDir, "user")
		system := filepath.Join(tmpDir, "system")
		writeFile(filepath.Join(user, "a.desktop"), "[Desktop Entry]\nName=User A\nExec=a\n")
		writeFile(filepath.Join(system, "a.desktop"), "[Desktop Entry]\nName=System A\nExec=a\n")

		entries := scan(user, filepath.Join(tmpDir, "missing"), system)
		gomega.Expect(entries).To(gomega.HaveLen(2))
		gomega.Expect(entries[0].Name).To(gomega.Equal("User A"))
		gomega.Expect(entries[1].Name).To(gomega.Equal("System A"))
	})

	ginkgo.It("should reparse files that changed since the last scan", func() {
		path := filepath.Join(tmpDir, "apps", "a.desktop")
		writeFile(path, "[Desktop Entry]\nName=Before\nExec=a\n")
		gomega.Expect(scan(filepath.Join(tmpDir, "apps"))[0].Name).To(gomega.Equal("Before"))

		writeFile(path, "[Desktop Entry]\nName=After edit\nExec=a\n")
		later := time.Now().Add(time.Minute)
		gomega.Expect(os.Chtimes(path, later, later)).To(gomega.Succeed())
		gomega.Expect(scan(filepath.Join(tmpDir, "apps"))[0].Name).To(gomega.Equal("After edit"))
	})

	ginkgo.It("should hand out copies of cached entries", func() {
		writeFile(filepath.Join(tmpDir, "apps", "a.desktop"), "[Desktop Entry]\nName=A\nExec=a\n")
		first := scan(filepath.Join(tmpDir, "apps"))[0]
		first.Name = "mutated"

		gomega.Expect(scan(filepath.Join(tmpDir, "apps"))[0].Name).To(gomega.Equal("A"))
	})
})
