package config

// GlobalConfigTemplate is the default template for ~/.config/oenv/config.yaml.
// It includes comments explaining each option.
const GlobalConfigTemplate = `# oenv global configuration
# Location: ~/.config/oenv/config.yaml

# Schema version (required)
version: 1

# Odoo branch used when create is called without --odoo-version
default_version: "17.0"

# Source archive; {version} is replaced with the requested branch
archive_url: https://github.com/odoo/odoo/archive/refs/heads/{version}.zip

# Environment registry location (default: $XDG_DATA_HOME/oenv/state.db)
# state_db: ~/.local/share/oenv/state.db

# Container definition written by create, relative to the working directory
compose_file: docker-compose.yml

# External programs
tools:
  pip: [pip]
  compose: [docker, compose]
  shell: bash

# pyenv bootstrap
pyenv:
  installer_url: https://pyenv.run
  profile: ~/.bashrc

# PostgreSQL container and odoo.conf connection settings
database:
  image: postgres:latest
  name: odoo
  user: odoo
  # Literal, ${VAR} reference, or {from_file: path}
  password: odoo
  host: localhost
  port: 5432

# Remaining odoo.conf settings
odoo:
  admin_password: odoo
  dbfilter: odoo

# Logging: level is debug, info, warn or error; format is text, color or json
log:
  level: info
  format: text
`

// ProjectConfigTemplate is the default template for .oenv.yaml.
// It includes commented examples for all configuration options.
const ProjectConfigTemplate = `# oenv project configuration
# Location: .oenv.yaml (found from the working directory upwards)

# Schema version (required)
version: 1

# Odoo branch override
# default_version: "16.0"

# Container definition path, relative to this file
# compose_file: docker-compose.yml

# Database overrides (any field may be omitted)
# database:
#   image: postgres:15
#   password:
#     from_file: ~/.secrets/odoo-db
#   port: 5433

# odoo.conf overrides
# odoo:
#   admin_password: ${ODOO_ADMIN_PASSWORD}
#   dbfilter: ^mydb$

# Provisioning steps to skip: pyenv, fetch, requirements, database, config
# skip:
#   - pyenv
`

// ProjectConfigMinimalTemplate is a minimal template without comments.
const ProjectConfigMinimalTemplate = `version: 1
`
