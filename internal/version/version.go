package version

// Version is the release of the harvester and seeder binaries.
const Version = "0.3.0"
