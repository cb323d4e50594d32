package action

// builtins is the union of every command the editor integrations have
// registered over time. Older spellings survive as aliases.
var builtins = []Action{
	{
		ID: "csd-audio", Kind: KindShell, Subcommand: "csd-audio",
		Aliases:     []string{"renderCsdToAudio", "render-audio"},
		Description: "Render the csd file to the system audio device",
	},
	{
		ID: "csd-soundfile", Kind: KindShell, Subcommand: "csd-play",
		Aliases:     []string{"play-soundfile"},
		Description: "Render the csd file to a soundfile, post-process and play it",
	},
	{
		ID: "csd-patch", Kind: KindShell, Subcommand: "csd-patch",
		Aliases:     []string{"csd_psyvh", "render-patch"},
		Description: "Include the patch in a test csd, render it and open the soundfile",
	},
	{
		ID: "html-localhost", Kind: KindShell, Subcommand: "html-localhost",
		Aliases:     []string{"localhost-preview"},
		Description: "Open the HTML file from a local web server",
	},
	{
		ID: "html-nw", Kind: KindShell, Subcommand: "html-nw",
		Description: "Run the HTML file as a NW.js application",
	},
	{
		ID: "cpp-lib", Kind: KindShell, Subcommand: "cpp-lib",
		Aliases:     []string{"build-library"},
		Description: "Compile the C++ file as a shared library",
	},
	{
		ID: "cpp-app", Kind: KindShell, Subcommand: "cpp-app",
		Aliases:     []string{"build-app"},
		Description: "Compile and link the C++ file as a program",
	},
	{
		ID: "cpp-audio", Kind: KindShell, Subcommand: "cpp-audio",
		Aliases:     []string{"build-audio"},
		Description: "Compile the C++ composition and render it to audio",
	},
	{
		ID: "cpp-soundfile", Kind: KindShell, Subcommand: "cpp-play",
		Aliases:     []string{"play-build"},
		Description: "Compile the C++ composition, render a soundfile and play it",
	},
	{
		ID: "post-process", Kind: KindShell, Subcommand: "post-process",
		Aliases:     []string{"csd-post"},
		Description: "Normalize a soundfile and save it in various formats",
	},
	{
		ID: "play", Kind: KindShell, Subcommand: "play",
		Description: "Open the normalized soundfile in the soundfile editor",
	},
	{
		ID: "cpp-astyle", Kind: KindShell, Subcommand: "cpp-astyle",
		Description: "Reformat the source file with astyle",
	},
	{
		ID: "html5-reference", Kind: KindURL, URL: "https://www.w3schools.com/jsref/default.asp",
		Description: "HTML5 and JavaScript reference",
	},
	{
		ID: "csound-reference", Kind: KindURL, URL: "https://csound.com/docs/manual/index.html",
		Aliases:     []string{"man-csound"},
		Description: "Csound Reference Manual",
	},
	{
		ID: "csound-api-reference", Kind: KindURL, URL: "https://csound.com/docs/api/index.html",
		Description: "Csound API reference",
	},
	{
		ID: "csound-ac-reference", Kind: KindURL, URL: "file://${HOME}/csound-ac/doc/latex/csound-ac.pdf",
		Aliases:     []string{"man-csoundac"},
		Description: "CsoundAC reference",
	},
	{
		ID: "cpp-reference", Kind: KindURL, URL: "https://en.cppreference.com/w/",
		Description: "C++ reference",
	},
	{
		ID: "python-reference", Kind: KindURL, URL: "https://docs.python.org/3/",
		Aliases:     []string{"man-python"},
		Description: "Python 3 documentation",
	},
}

// Builtin returns a fresh catalog holding the built-in actions.
func Builtin() *Catalog {
	c := NewCatalog()
	for _, a := range builtins {
		a.Aliases = append([]string(nil), a.Aliases...)
		if err := c.Add(a); err != nil {
			panic("action: invalid builtin: " + err.Error())
		}
	}
	return c
}
