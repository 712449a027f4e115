// Package credentials stores named client-credential profiles for the
// source API outside of the configuration file.
//
// Profiles live in the system keychain (github.com/zalando/go-keyring)
// when one is available, otherwise in an AES-GCM encrypted file whose key
// is derived with PBKDF2. Environment variables of the form
// SFEXTRACT_<PROFILE>_CLIENT_ID provide a read-only source for CI.
package credentials
