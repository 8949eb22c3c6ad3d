package shared

import "testing"

func TestBrowserCommand(t *testing.T) {
	tt := []struct {
		goos     string
		wantName string
		wantErr  bool
	}{
		{goos: "darwin", wantName: "open"},
		{goos: "linux", wantName: "xdg-open"},
		{goos: "windows", wantName: "rundll32"},
		{goos: "plan9", wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.goos, func(t *testing.T) {
			name, args, err := browserCommand(tc.goos, "https://example.com")
			if (err != nil) != tc.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if name != tc.wantName {
				t.Errorf("name = %s, want %s", name, tc.wantName)
			}
			if args[len(args)-1] != "https://example.com" {
				t.Errorf("expected url as last argument, got %v", args)
			}
		})
	}

	t.Run("OpenBrowser unsupported platform", func(t *testing.T) {
		orig := getRuntime
		getRuntime = func() string { return "plan9" }
		defer func() { getRuntime = orig }()

		if err := OpenBrowser("https://example.com"); err == nil {
			t.Error("expected error on unsupported platform")
		}
	})
}
