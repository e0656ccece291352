package access

import "testing"

func TestCheckFileTool(t *testing.T) {
	p := New("/home/user/work", "/home/user/shared")

	tests := []struct {
		name      string
		path      string
		wantAllow bool
	}{
		{"inside primary workdir", "/home/user/work/notes.txt", true},
		{"inside workdir exactly", "/home/user/work", true},
		{"inside extra allowed dir", "/home/user/shared/file.txt", true},
		{"sibling dir with same prefix denied", "/home/user/work-other/file.txt", false},
		{"outside entirely denied", "/etc/passwd", false},
		{"relative path allowed", "notes.txt", true},
		{"empty path allowed", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allow, msg := p.CheckFileTool(tt.path)
			if allow != tt.wantAllow {
				t.Errorf("CheckFileTool(%q) = %v (%q), want %v", tt.path, allow, msg, tt.wantAllow)
			}
		})
	}
}

func TestCheckBashCommand(t *testing.T) {
	p := New("/home/user/work")

	tests := []struct {
		name      string
		cmd       string
		wantAllow bool
	}{
		{"relative-only command allowed", "ls -la && cat notes.txt", true},
		{"cat inside workdir allowed", "cat /home/user/work/notes.txt", true},
		{"cat outside workdir denied", "cat /etc/passwd", false},
		{"redirection outside denied", "echo hi > /etc/motd", false},
		{"redirection inside allowed", "echo hi > /home/user/work/out.txt", true},
		{"rm outside denied", "rm /home/user/.ssh/id_rsa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allow, msg := p.CheckBashCommand(tt.cmd)
			if allow != tt.wantAllow {
				t.Errorf("CheckBashCommand(%q) = %v (%q), want %v", tt.cmd, allow, msg, tt.wantAllow)
			}
		})
	}
}
