package hcl

// fileRoot is the top-level schema decoded from a host configuration file.
type fileRoot struct {
	Host      *hostBlock      `hcl:"host,block"`
	Channels  []*channelBlock `hcl:"channel,block"`
	Libraries []*libraryBlock `hcl:"library_path,block"`
}

// hostBlock declares the role this process runs as plus its transport and
// timing settings. Durations are HCL strings ("500ms", "2s") parsed during
// translation.
type hostBlock struct {
	Role      string   `hcl:"role,label"`
	Name      string   `hcl:"name,optional"`
	Listen    string   `hcl:"listen,optional"`
	URL       string   `hcl:"url,optional"`
	Heartbeat string   `hcl:"heartbeat,optional"`
	TimeUnit  string   `hcl:"time_unit,optional"`
	Services  []string `hcl:"services,optional"`
}

// channelBlock pre-declares one channel for the server to reserve at startup.
type channelBlock struct {
	Name string `hcl:"name,label"`
	Kind string `hcl:"kind"`
}

// libraryBlock appends one directory of library manifests to the search
// order.
type libraryBlock struct {
	Name    string `hcl:"name,label"`
	Dir     string `hcl:"dir"`
	Private bool   `hcl:"private,optional"`
}
